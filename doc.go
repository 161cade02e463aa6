// Package authgate provides the authentication engine for a single
// privileged admin surface: Argon2id credential verification, short-lived
// JWT access tokens, and rotating opaque refresh tokens with family-wide
// revocation when a retired token is replayed.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, AccessIdentity, MetricsSnapshot). Token
// encoding and rate limiting live under internal/ and are never exported;
// the refresh record store and the JWT manager are importable sub-packages
// for callers that need them directly.
//
// # Performance contract
//
// ValidateAccess is the hot path and completes without any Redis round
// trip. Login and Logout take a bounded number of Redis round-trips;
// Refresh performs its rotation in a single atomic server-side script, so
// concurrent presentations of the same token produce exactly one winner.
package authgate
