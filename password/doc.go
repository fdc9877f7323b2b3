// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Stored hashes produced with weaker parameters are reported by
// [Argon2.NeedsUpgrade] so the engine can rehash after a successful login.
// Strength rules live in the account package; this package never logs or
// stores plaintext.
package password
