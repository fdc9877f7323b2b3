// Package session tracks login sessions across a fast cache and a durable
// store.
//
// The durable [Store] is the source of truth. The optional [Cache] is
// written through on create and repaired by read-through on a miss; a
// [Registry] without a cache runs on the durable store alone. Refresh
// token records live beside sessions in [RefreshStore], keyed by the
// SHA-256 of the token so plaintext refresh tokens are never persisted.
//
// This package does not interpret tokens or make authentication
// decisions; the engine does.
package session
