// Package internal holds helpers private to the kleva module.
//
// # Sub-packages
//
//   - ids: ULID account identifiers and hashed one-time secret tokens
//   - limiters: the password lockout state machine and named request throttles
//   - metrics: Prometheus collectors for login, session and 2FA outcomes
//   - rate: Redis fixed-window and in-process token-bucket rate primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public kleva API.
//   - Be imported by any package outside the kleva module.
package internal
