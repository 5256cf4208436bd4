// Package password provides password hashing and verification for waypoint.
//
// New hashes are Argon2id in a PHC-like encoded string that also carries the
// scheme version:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>,ver=2$<salt_b64>$<hash_b64>
//
// Older stored hashes remain verifiable:
// - version 1: bcrypt ($2a$, $2b$, $2y$) and Argon2id without a ver= param
// - version 2: Argon2id with ver=2 (current)
//
// NeedsUpgrade inspects the encoding only, so callers can decide to rehash
// after a successful Verify without any extra hashing work.
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
package password
