package authgate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arfenn/authgate/internal"
	"github.com/arfenn/authgate/refresh"
)

// Login verifies the administrator's credentials and, on success, opens a
// fresh token family: sequence-0 refresh record plus a signed access token.
// Unknown email and wrong password are indistinguishable to the caller, in
// both error value and response time.
func (e *Engine) Login(ctx context.Context, email, passwordStr string) (*TokenPair, error) {
	if e == nil || e.passwordHash == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			mapped := mapRateErr(err, ErrLoginRateLimited)
			if mapped == ErrLoginRateLimited {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, EventLoginRateLimited, false, email, "", "", mapped, nil)
			}
			return nil, mapped
		}
	}

	identity, found := e.credentials.Lookup(email)
	if !found {
		// Burn a verification against the dummy hash so a miss costs the
		// same as a mismatch.
		_, _ = e.passwordHash.Verify(passwordStr, e.passwordHash.DummyHash())
		return nil, e.failLogin(ctx, email, ip)
	}

	ok, err := e.passwordHash.Verify(passwordStr, identity.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, email, ip)
	}

	if e.rateLimiter != nil {
		// Counter reset is best effort; a stale counter only shortens the
		// remaining budget.
		_ = e.rateLimiter.ResetLogin(ctx, email, ip)
	}

	pair, familyID, err := e.openFamily(ctx, identity)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, email, familyID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, email, pair.FamilyID, "", nil, nil)
	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil {
			if mapped := mapRateErr(err, ErrLoginRateLimited); mapped == ErrLoginRateLimited {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, EventLoginRateLimited, false, email, "", "", mapped, nil)
				return mapped
			}
		}
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailure, false, email, "", "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// openFamily mints the sequence-0 record of a brand-new family together
// with its access token.
func (e *Engine) openFamily(ctx context.Context, identity AdminIdentity) (*TokenPair, string, error) {
	familyID := uuid.NewString()

	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, familyID, ErrEngineNotReady
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, familyID, ErrEngineNotReady
	}

	now := time.Now()
	deadline := now.Add(e.config.Refresh.FamilyLifetime)
	expires := now.Add(e.config.Refresh.RotationTTL)
	if expires.After(deadline) {
		expires = deadline
	}

	rec := &refresh.Record{
		TokenID:        tokenID.String(),
		FamilyID:       familyID,
		Sequence:       0,
		TokenHash:      internal.HashRefreshSecret(secret),
		Subject:        identity.Email,
		Role:           identity.Role,
		IssuedAt:       now.Unix(),
		ExpiresAt:      expires.Unix(),
		FamilyDeadline: deadline.Unix(),
	}

	if err := e.refreshStore.Create(ctx, rec); err != nil {
		return nil, familyID, ErrStorageUnavailable
	}

	accessToken, err := e.jwtManager.CreateAccess(identity.Email, identity.Role, familyID)
	if err != nil {
		return nil, familyID, ErrEngineNotReady
	}

	rawRefresh, err := internal.EncodeRefreshToken(rec.TokenID, secret)
	if err != nil {
		return nil, familyID, ErrEngineNotReady
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		FamilyID:     familyID,
	}, familyID, nil
}
