// Package kleva is the account-security core of the Kleva marketplace:
// registration, email verification, password login with lockout, TOTP
// two-factor with backup codes, JWT access and refresh tokens, and
// revocable multi-device sessions.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. The Engine keeps no in-process state besides the
// notification queue; accounts, sessions, refresh records and throttle
// counters live in the stores passed to the Builder.
//
// # Architecture boundaries
//
// kleva is the public surface. It exposes [Engine], [Builder], [Config] and
// the request and result types. Storage contracts live in the account and
// session packages, with Postgres and Redis implementations under store/
// and session/. Throttling, metrics and identifiers live under internal/.
//
// # Login flow
//
// Login runs CredentialCheck, LockCheck, PasswordVerify, TwoFactorGate,
// TokenIssue and SessionCreate in that order. A locked account never
// reaches the hash comparison. When 2FA is enabled and no code is given,
// Login stops at the gate and returns a temporary token that only
// [Engine.CompleteTwoFactorLogin] accepts.
//
// # Errors
//
// Callers get sentinel errors comparable with errors.Is and mapped to
// stable codes by [Code]. Store failures surface as [ErrInternal] and are
// logged with full context.
package kleva
