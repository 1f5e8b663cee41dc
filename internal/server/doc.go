// Package server provides HTTP routing, middleware, the backend endpoints and the loopback
// redirect catcher.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Backend
//
// [API] serves the token lifecycle endpoints:
//
//	GET  /login[?userId=]       302 to the provider consent page
//	GET  /callback?code&state   302 to the frontend root with tokens
//	POST /refresh-token         {refresh_token} -> {access_token, refresh_token}
//	POST /verify-token          {access_token} -> {valid, user | error, status}
//	GET  /check-token-scopes    ?token= -> {token_status, scope_results}
//	GET  /test-top-tracks       ?token=&time_range= diagnostic
//	POST /api/register          {username, email, password} -> {success, token, user}
//	POST /api/login             {username, password} -> {success, token, user}
//	GET  /api/spotify-auth      Bearer session -> {authUrl}
//	GET  /api/me                Bearer session -> user
//	GET  /health                {status}
//
// Token endpoints share a per-client [RateLimiter]. Errors use the {error, details} envelope.
//
// # Loopback Catcher
//
// [Catcher] implements [Handler] for the frontend root. The CLI serves it on the configured
// frontend address while an authorization is in progress: the backend's final redirect lands
// there, the tokens are stored through [session.Bootstrap], and the page strips them from the
// address bar.
package server
