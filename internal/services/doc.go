// Package services contains the HTTP clients soundcheck talks to: the Spotify Web API and the soundcheck backend.
//
// # Caller
//
// Every Spotify request goes through a [Caller]. The CLI plugs in the retrying session proxy, which
// owns token refresh; the backend plugs in a [BearerCaller] holding a freshly exchanged token.
// [SpotifyService] itself never sees a refresh token.
//
// # Backend
//
// [BackendService] wraps the backend endpoints (/refresh-token, /verify-token, /check-token-scopes,
// /api/*). It maps backend statuses onto the sentinel errors in the shared package:
//   - [shared.ProviderError] : the provider refused a refresh grant
//   - [shared.ErrNetwork] : transport failure, timeout, or the backend could not reach the provider
//   - [shared.ErrAccountExists] : 409 from /api/register
//   - [shared.ErrInvalidCredentials] : 401 from the account endpoints
//
// Any other non-2xx status is a [shared.RequestError] carrying the message from the error envelope.
package services
