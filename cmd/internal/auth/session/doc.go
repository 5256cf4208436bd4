// Package session issues and verifies waypoint session tokens.
//
// A session token is a compact HS256 JWS whose claims carry the subject id
// ("id"), expiry ("exp", epoch seconds), issued-at and issuer. The token is
// the session: nothing is stored server-side and there are no refresh tokens.
//
// The codec holds only immutable state (issuer, TTL, key, clock) and is safe
// for concurrent use.
package session
