// Package auth implements the two credential gateways the backend exposes.
//
// [Gateway] is the Spotify side: it builds authorization URLs, exchanges authorization codes,
// refreshes access tokens, and optionally links the resulting Spotify identity to a local account.
// The link target travels through the provider in the OAuth state parameter, signed with the
// server session secret so a forged or truncated state never links anything.
//
// [Accounts] is the local side: username/password accounts hashed with bcrypt, validated with
// go-playground/validator, and signed in with short-lived HS256 session tokens.
//
// Linking failures never fail a callback. They are logged and returned in [CallbackResult.LinkErr]
// so the user still receives working tokens.
package auth
