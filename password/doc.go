// Package password implements credential hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Enumeration resistance
//
// [Hasher.DummyHash] returns a throwaway hash produced at construction time so
// callers can burn an equivalent-cost verification when the looked-up identity
// does not exist. Login latency is then indistinguishable between "unknown
// email" and "wrong password".
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It stores nothing, imports
// no other authgate package, and never logs plaintext input.
package password
