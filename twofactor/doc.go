// Package twofactor manages TOTP enrollment and verification plus the
// batch of single-use backup codes issued alongside a TOTP secret.
//
// Backup codes are stored only as SHA-256 hashes salted with the account
// id. Redemption is delegated to the store as one atomic find-and-mark-used
// operation, so two concurrent requests for the same code cannot both win.
package twofactor
