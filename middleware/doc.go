// Package middleware exposes HTTP middleware adapters over kleva.Engine
// authentication.
//
// # Guards
//
//   - [Guard] verifies the bearer token and its session, then stores the
//     caller identity in the request context.
//   - [RequireRole] restricts a route to a set of account roles.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.Authenticate.
package middleware
