// Package limiters holds the engine's brute-force policies.
//
//   - [Lockout] is the per-account login lockout state machine. Its state
//     lives on the account record so every process sees the same counter.
//   - [Throttle] wraps an internal/rate budget for login origins, two-factor
//     attempts and outbound email requests.
//
// All types are nil-safe: methods on a nil receiver allow everything.
package limiters
