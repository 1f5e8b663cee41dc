// Package models defines domain entities and persistence interfaces for soundcheck.
//
// The package contains two categories of types:
//
// 1. Credential values passed between the token store, the auth gateway and the retry layer
//   - [TokenRecord] : access/refresh token pair for the provider
//   - [LinkedIdentity] : association of a local account with a Spotify account
//
// 2. Persistent Entities
//   - [Account] : local user accounts with an optional [LinkedIdentity]
//
// Persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
