// Package sistema resolves directed acyclic graphs of dependent work:
// wire Nodes together with DependsOn, give each one a ProviderFunc with
// Provides, then call Run or RunAll to execute the graph that feeds a
// target, or a list of targets sharing a single resolution pass.
//
// A Node is either Transient (its provider runs again on every Run
// that reaches it) or a Resource (its provider runs at most once,
// memoized until the node is torn down). Within a single Run, every
// Node — Transient or Resource — is still visited at most once: sibling
// branches that depend on the same Node share its in-flight result
// rather than triggering redundant work.
//
// A Context groups the Nodes a caller's requests have brought into
// being, so they can be torn down together in reverse-topological
// order once no further request needs them — see Context.Shutdown and
// Context.Reset.
package sistema
