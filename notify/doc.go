// Package notify delivers account-security events (verification emails,
// password resets, lockouts) to an outbound collaborator.
//
// The [Dispatcher] is fire-and-forget: Dispatch never blocks and never
// fails the caller. Events that do not fit the buffer are dropped and
// counted, and sink errors are logged.
package notify
