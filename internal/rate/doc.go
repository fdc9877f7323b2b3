// Package rate provides failure-budget primitives for the domain limiters
// in internal/limiters.
//
// Two backends implement [Limiter]:
//   - [Redis]: fixed-window counters, INCR + EXPIRE on the first hit, shared
//     by every process talking to the same Redis.
//   - [Local]: per-key token buckets from golang.org/x/time/rate, used when a
//     deployment runs without Redis.
//
// This package only counts; consequences are decided by callers.
package rate
