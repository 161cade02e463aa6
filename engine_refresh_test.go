package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arfenn/authgate/internal"
	"github.com/arfenn/authgate/refresh"
)

func TestRefreshRotatesThroughChain(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	current := pair
	for i := 0; i < 4; i++ {
		next, err := engine.Refresh(ctx, current.RefreshToken)
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
		if next.RefreshToken == current.RefreshToken {
			t.Fatalf("rotation %d returned the same refresh token", i)
		}
		if next.FamilyID != pair.FamilyID {
			t.Fatalf("rotation %d changed family: %q -> %q", i, pair.FamilyID, next.FamilyID)
		}
		if _, err := engine.ValidateAccess(next.AccessToken); err != nil {
			t.Fatalf("rotation %d access token invalid: %v", i, err)
		}
		current = next
	}
}

// The canonical theft scenario: a stolen-and-replayed old token must take
// the thief's fresh token down with it, and a new login must recover.
func TestReplayRevokesWholeFamily(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())
	ctx := context.Background()

	// 1. login
	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// 2. legitimate rotation
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// 3. old token replayed
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("replay error = %v, want ErrTokenReplayed", err)
	}

	// 4. the fresh token is dead too
	if _, err := engine.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("post-cascade error = %v, want ErrTokenReplayed", err)
	}

	// 5. a new login opens a working family
	again, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("re-login failed: %v", err)
	}
	if again.FamilyID == pair.FamilyID {
		t.Fatal("expected a fresh family after re-login")
	}
	if _, err := engine.Refresh(ctx, again.RefreshToken); err != nil {
		t.Fatalf("fresh family refresh failed: %v", err)
	}
}

func TestRefreshMalformedTokenIsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "A.B.C", "dG9vLXNob3J0"} {
		if _, err := engine.Refresh(ctx, token); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("token %q error = %v, want ErrTokenNotFound", token, err)
		}
	}
}

func TestRefreshUnknownTokenIsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())
	ctx := context.Background()

	tokenID, err := internal.NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	raw, err := internal.EncodeRefreshToken(tokenID.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("error = %v, want ErrTokenNotFound", err)
	}
}

func TestRefreshExpiredTokenIsExpired(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())
	ctx := context.Background()

	tokenID, err := internal.NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	now := time.Now()
	rec := &refresh.Record{
		TokenID:        tokenID.String(),
		FamilyID:       uuid.NewString(),
		TokenHash:      internal.HashRefreshSecret(secret),
		Subject:        testEmail,
		Role:           RoleAdmin,
		IssuedAt:       now.Add(-2 * time.Hour).Unix(),
		ExpiresAt:      now.Add(-time.Hour).Unix(),
		FamilyDeadline: now.Add(time.Hour).Unix(),
	}
	if err := engine.refreshStore.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	raw, err := internal.EncodeRefreshToken(rec.TokenID, secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}

	// Expiry is not theft; the family survives intact.
	recs, err := engine.FamilyRecords(ctx, rec.FamilyID)
	if err != nil {
		t.Fatalf("FamilyRecords failed: %v", err)
	}
	for _, r := range recs {
		if r.Revoked {
			t.Fatal("expiry must not revoke the family")
		}
	}
}

func TestRefreshThrottleBoundsReplaySpam(t *testing.T) {
	cfg := newTestConfig()
	cfg.Security.MaxRefreshAttempts = 2
	cfg.Security.RefreshCooldownDuration = time.Minute
	engine, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("first replay error = %v, want ErrTokenReplayed", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("spam error = %v, want ErrRefreshRateLimited", err)
	}
}

func TestLostRaceCountsAsRotateConflict(t *testing.T) {
	cfg := newTestConfig()
	cfg.Metrics.Enabled = true
	engine, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// A retired token presented right after its rotation carries the race
	// signature: both the replay and the conflict counters fire.
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("error = %v, want ErrTokenReplayed", err)
	}
	s := engine.MetricsSnapshot()
	if got := s.Counters[MetricReplayDetected]; got != 1 {
		t.Fatalf("replay_detected = %d, want 1", got)
	}
	if got := s.Counters[MetricRotateConflict]; got != 1 {
		t.Fatalf("rotate_conflict = %d, want 1", got)
	}

	// The successor died in the family sweep, not in a rotation, so
	// presenting it is a plain replay.
	if _, err := engine.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("error = %v, want ErrTokenReplayed", err)
	}
	s = engine.MetricsSnapshot()
	if got := s.Counters[MetricReplayDetected]; got != 2 {
		t.Fatalf("replay_detected = %d, want 2", got)
	}
	if got := s.Counters[MetricRotateConflict]; got != 1 {
		t.Fatalf("rotate_conflict = %d, want 1 after sweep replay", got)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	cfg := newTestConfig()
	cfg.Security.MaxRefreshAttempts = 100
	engine, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	type outcome struct {
		pair *TokenPair
		err  error
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan outcome, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			p, err := engine.Refresh(ctx, pair.RefreshToken)
			results <- outcome{pair: p, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var winner *TokenPair
	success := 0
	replayed := 0
	for res := range results {
		switch {
		case res.err == nil:
			success++
			winner = res.pair
		case errors.Is(res.err, ErrTokenReplayed):
			replayed++
		default:
			t.Fatalf("unexpected refresh error: %v", res.err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
	if replayed != n-1 {
		t.Fatalf("expected %d replay losers, got %d", n-1, replayed)
	}

	// The losers' replays revoked the whole family, so even the winner's
	// freshly minted token is already dead.
	if _, err := engine.Refresh(ctx, winner.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("winner successor error = %v, want ErrTokenReplayed", err)
	}
	recs, err := engine.FamilyRecords(ctx, pair.FamilyID)
	if err != nil {
		t.Fatalf("FamilyRecords failed: %v", err)
	}
	for _, r := range recs {
		if !r.Revoked {
			t.Fatalf("record %s survived the race unrevoked", r.TokenID)
		}
	}
}
