// package session owns the client side of the token lifecycle.
//
// A [Session] pairs the persisted [Credentials] with an in-memory [AuthState]:
//
//	Unauthenticated -> Authenticated <-> Refreshing -> Expired -> Authenticated
//
// [Bootstrap] resolves the initial state on every start, preferring tokens delivered in the
// redirect location over stored ones. [Proxy] is the only component that sends provider requests
// on behalf of the user; it refreshes a rejected token at most once per request and shares a
// refresh between concurrent callers.
//
// Tokens are stored in a JSON file ([FileStore]) guarded by a sibling lock file, so several CLI
// invocations can share one login.
package session
