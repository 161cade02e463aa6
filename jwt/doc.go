// Package jwt wraps github.com/golang-jwt/jwt/v5 behind a fixed-policy
// [Manager] for short-lived administrative access tokens.
//
// Tokens are self-contained: subject, role, and expiry travel inside the
// signed payload and no server-side state is consulted during validation.
// Revoking an access token before it expires is not possible; the refresh
// layer bounds exposure by keeping the access TTL short.
package jwt
