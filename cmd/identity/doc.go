// Package identity is the user account persistence boundary.
//
// It stores users and their credentials (encoded password hashes, never
// plaintext) and maps storage failures onto stable error kinds:
// ConflictError for uniqueness violations and NotFoundError for missing rows.
// Hashing itself lives in security/password; this package only checks that a
// stored hash is one that package can parse.
package identity
