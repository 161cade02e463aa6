// Package rate provides Redis-backed fixed-window rate limiting for login
// and refresh attempts.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - agl:i:  login per-identifier
//   - agl:ip: login per-IP
//   - agr:    refresh per presented token ID
//
// Limiting blunts brute force and rotation spam; it is not part of the
// rotation correctness argument and must never be imported outside the
// authgate module.
package rate
