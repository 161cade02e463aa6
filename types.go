package authgate

// RoleAdmin is the only role this engine models. The surrounding platform
// has exactly one privileged surface; richer role modeling lives elsewhere.
const RoleAdmin = "admin"

// AdminIdentity is one provisioned administrator. Immutable after
// provisioning: the engine never writes back to the credential store.
type AdminIdentity struct {
	Email        string
	PasswordHash string
	Role         string
}

// CredentialStore is the leaf dependency holding administrator identities.
// Implementations must be safe for concurrent lookups and must not leak
// whether an email exists through timing (the engine burns a dummy hash for
// misses, so a fast miss path here is fine).
type CredentialStore interface {
	Lookup(email string) (AdminIdentity, bool)
}

// StaticCredentials is the built-in CredentialStore for the expected case of
// one or a handful of administrators provisioned at startup.
type StaticCredentials struct {
	byEmail map[string]AdminIdentity
}

// NewStaticCredentials builds a read-only credential store from the given
// identities. Empty roles default to [RoleAdmin].
func NewStaticCredentials(identities ...AdminIdentity) *StaticCredentials {
	s := &StaticCredentials{byEmail: make(map[string]AdminIdentity, len(identities))}
	for _, id := range identities {
		if id.Role == "" {
			id.Role = RoleAdmin
		}
		s.byEmail[id.Email] = id
	}
	return s
}

// Lookup implements [CredentialStore].
func (s *StaticCredentials) Lookup(email string) (AdminIdentity, bool) {
	id, ok := s.byEmail[email]
	return id, ok
}

// TokenPair is the result of a successful login or refresh: a signed access
// token and the raw refresh token to be set as a hardened cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// FamilyID identifies the login lineage; useful for audit correlation
	// and admin revocation. Never expose it to unauthenticated callers.
	FamilyID string
}

// AccessIdentity is the validated identity extracted from an access token.
type AccessIdentity struct {
	Subject  string
	Role     string
	FamilyID string
}
