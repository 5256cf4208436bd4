// Package account sequences credential hashing, storage and session issuance
// for the registration, login and profile-update flows.
//
// Login is opaque: an unknown identifier and a wrong password both yield
// ErrUnauthorized, and the unknown case still spends one hash verification.
// A successful login against an outdated hash re-hashes the password and
// stores it; failing to store it is logged and does not fail the login.
package account
