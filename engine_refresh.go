package authgate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/arfenn/authgate/internal"
	"github.com/arfenn/authgate/refresh"
)

// Refresh rotates the presented refresh token: the old record is retired,
// a successor with sequence+1 is written, and a new access token is minted
// from the identity stored on the record. Presenting an already-retired
// token revokes the entire family before the error is returned.
func (e *Engine) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	if e == nil || e.refreshStore == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeRefreshToken(rawToken)
	if err != nil {
		// Malformed tokens are indistinguishable from unknown ones.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, "", "", "", ErrTokenNotFound, nil)
		return nil, ErrTokenNotFound
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, tokenID); err != nil {
			mapped := mapRateErr(err, ErrRefreshRateLimited)
			if mapped == ErrRefreshRateLimited {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, EventRefreshLimited, false, "", "", tokenID, mapped, nil)
			}
			return nil, mapped
		}
	}

	newTokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, ErrEngineNotReady
	}
	newSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.refreshStore.Rotate(
		ctx,
		tokenID,
		internal.HashRefreshSecret(secret),
		newTokenID.String(),
		internal.HashRefreshSecret(newSecret),
		e.config.Refresh.RotationTTL,
	)
	if err != nil {
		return nil, e.failRefresh(ctx, tokenID, rec, err)
	}

	accessToken, err := e.jwtManager.CreateAccess(rec.Subject, rec.Role, rec.FamilyID)
	if err != nil {
		return nil, ErrEngineNotReady
	}

	rawRefresh, err := internal.EncodeRefreshToken(rec.TokenID, newSecret)
	if err != nil {
		return nil, ErrEngineNotReady
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshSuccess, true, rec.Subject, rec.FamilyID, rec.TokenID, nil, func() map[string]string {
		return map[string]string{
			"sequence": strconv.FormatUint(rec.Sequence, 10),
		}
	})

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		FamilyID:     rec.FamilyID,
	}, nil
}

// failRefresh maps store failures onto the public error surface. A revoked
// record is the replay signal: the remaining live tail of the family is
// killed before returning, so a thief holding the newest token loses it too.
func (e *Engine) failRefresh(ctx context.Context, tokenID string, rec *refresh.Record, err error) error {
	switch {
	case errors.Is(err, refresh.ErrRecordRevoked):
		familyID := ""
		if rec != nil {
			familyID = rec.FamilyID
		}

		e.metricInc(MetricReplayDetected)
		e.emitAudit(ctx, EventRefreshReplayed, false, "", familyID, tokenID, ErrTokenReplayed, nil)

		if e.lostRotationRace(rec) {
			e.metricInc(MetricRotateConflict)
			e.emitAudit(ctx, EventRotateConflict, false, "", familyID, tokenID, ErrTokenReplayed, func() map[string]string {
				return map[string]string{
					"replaced_by": rec.ReplacedBy,
				}
			})
		}

		if familyID != "" {
			touched, revokeErr := e.refreshStore.RevokeFamily(ctx, familyID)
			if revokeErr != nil {
				// Containment failed; surface the outage rather than a
				// replay verdict the caller might treat as handled.
				return ErrStorageUnavailable
			}
			e.metricInc(MetricFamilyRevoked)
			e.emitAudit(ctx, EventFamilyRevoked, true, "", familyID, tokenID, nil, func() map[string]string {
				return map[string]string{
					"records": strconv.Itoa(touched),
					"cause":   "replay",
				}
			})
		}
		return ErrTokenReplayed

	case errors.Is(err, refresh.ErrRecordExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, "", "", tokenID, ErrTokenExpired, nil)
		return ErrTokenExpired

	case errors.Is(err, refresh.ErrRecordNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, "", "", tokenID, ErrTokenNotFound, nil)
		return ErrTokenNotFound

	default:
		return ErrStorageUnavailable
	}
}

// lostRotationRace reports whether a revoked record looks like the loser of
// a concurrent rotation rather than a later replay of a stolen copy: it was
// retired by a successful rotation within the conflict window. Containment
// is the same either way; only the telemetry differs.
func (e *Engine) lostRotationRace(rec *refresh.Record) bool {
	window := e.config.Refresh.RotateConflictWindow
	if window <= 0 || rec == nil || rec.ReplacedBy == "" || rec.RetiredAt == 0 {
		return false
	}
	return time.Now().Unix()-rec.RetiredAt <= int64(window/time.Second)
}
