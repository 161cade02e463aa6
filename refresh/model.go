package refresh

// Record is the stored form of one refresh token. The raw token value never
// appears here; only its SHA-256 hash is persisted.
type Record struct {
	TokenID  string
	FamilyID string

	// Sequence is the record's position in its family, starting at 0 on
	// login and increasing by exactly 1 per successful rotation.
	Sequence uint64

	TokenHash [32]byte

	Subject string
	Role    string

	IssuedAt  int64
	ExpiresAt int64

	// FamilyDeadline is the absolute end of the whole lineage. No rotation
	// extends a record's expiry past it.
	FamilyDeadline int64

	Revoked    bool
	ReplacedBy string

	// RetiredAt is set when a successful rotation retires the record. Zero
	// for live records and for records revoked by a family-wide sweep.
	RetiredAt int64
}
