package authgate

import (
	"context"
	"errors"
	"strconv"

	"github.com/arfenn/authgate/internal"
	"github.com/arfenn/authgate/refresh"
)

// Logout revokes the family behind the presented refresh token. Idempotent
// and deliberately uninformative: malformed, unknown, expired, and
// already-revoked tokens all succeed, so logout responses leak nothing
// about token validity. Only a storage outage is reported.
func (e *Engine) Logout(ctx context.Context, rawToken string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeRefreshToken(rawToken)
	if err != nil {
		return nil
	}

	rec, err := e.refreshStore.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, refresh.ErrRecordNotFound) {
			return nil
		}
		return ErrStorageUnavailable
	}

	// A logout must present the secret, not just a guessed token ID.
	if rec.TokenHash != internal.HashRefreshSecret(secret) {
		return nil
	}

	touched, err := e.refreshStore.RevokeFamily(ctx, rec.FamilyID)
	if err != nil {
		return ErrStorageUnavailable
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, EventLogout, true, rec.Subject, rec.FamilyID, tokenID, nil, func() map[string]string {
		return map[string]string{
			"records": strconv.Itoa(touched),
			"cause":   "logout",
		}
	})

	return nil
}

// RevokeFamily kills every token in the given family. Administrative
// counterpart to the automatic replay cascade; use it when a lineage is
// known to be compromised out of band.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	if e == nil || e.refreshStore == nil {
		return 0, ErrEngineNotReady
	}

	touched, err := e.refreshStore.RevokeFamily(ctx, familyID)
	if err != nil {
		return 0, ErrStorageUnavailable
	}
	if touched == 0 {
		return 0, ErrFamilyNotFound
	}

	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, EventFamilyRevoked, true, "", familyID, "", nil, func() map[string]string {
		return map[string]string{
			"records": strconv.Itoa(touched),
			"cause":   "admin",
		}
	})

	return touched, nil
}
