// Package token owns the server-held signing secret and small hashing
// primitives built on it.
//
// The secret is resolved once at process start and injected into the
// session codec. Rotation is not supported.
//
// Policy:
//   - In production a secret MUST be configured and be at least MinSecretBytes long.
//   - Outside production a missing secret falls back to DefaultDevSecret; callers
//     should log that loudly.
package token
