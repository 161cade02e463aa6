package jwt

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func newHS256Manager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	m := newHS256Manager(t, time.Minute)

	token, err := m.CreateAccess("admin@example.com", "admin", "fam-1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.Subject != "admin@example.com" {
		t.Fatalf("subject = %q, want admin@example.com", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("role = %q, want admin", claims.Role)
	}
	if claims.FamilyID != "fam-1" {
		t.Fatalf("familyID = %q, want fam-1", claims.FamilyID)
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m := newHS256Manager(t, time.Minute)

	now := time.Now()
	claims := AccessClaims{
		Role: "admin",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin@example.com",
			Issuer:    "authgate-test",
			IssuedAt:  jwtlib.NewNumericDate(now.Add(-2 * time.Minute)),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(-time.Minute)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := m.ParseAccess(signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAccessRejectsTamperedSignature(t *testing.T) {
	m := newHS256Manager(t, time.Minute)

	token, err := m.CreateAccess("admin@example.com", "admin", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestParseAccessRejectsAlgorithmConfusion(t *testing.T) {
	m := newHS256Manager(t, time.Minute)

	// A token signed with "none" must never pass regardless of claims.
	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, AccessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin@example.com",
			Issuer:    "authgate-test",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := m.ParseAccess(signed); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestParseAccessRejectsFutureIAT(t *testing.T) {
	m := newHS256Manager(t, time.Minute)

	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin@example.com",
			Issuer:    "authgate-test",
			IssuedAt:  jwtlib.NewNumericDate(now.Add(time.Hour)),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(2 * time.Hour)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := m.ParseAccess(signed); err == nil {
		t.Fatal("expected future-iat token to be rejected")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"missing key", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")}},
		{"excessive leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}
