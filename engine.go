package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/arfenn/authgate/internal/rate"
	"github.com/arfenn/authgate/jwt"
	"github.com/arfenn/authgate/password"
	"github.com/arfenn/authgate/refresh"
)

// Engine binds credential verification, access-token issuance, and refresh
// rotation into one façade. Construct it through [New]; an Engine is
// immutable and safe for concurrent use after Build.
type Engine struct {
	config       Config
	credentials  CredentialStore
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	refreshStore *refresh.Store
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.close()
	}
}

// AuditDropped reports how many audit events the dispatcher discarded
// because its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess checks the signature and claims of an access token and
// returns the identity it carries. Purely local: no storage round trip, so
// a revoked family's access tokens stay valid until they expire.
func (e *Engine) ValidateAccess(tokenStr string) (AccessIdentity, error) {
	if e == nil || e.jwtManager == nil {
		return AccessIdentity{}, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return AccessIdentity{}, ErrAccessInvalid
	}

	e.metricInc(MetricValidateSuccess)
	return AccessIdentity{
		Subject:  claims.Subject,
		Role:     claims.Role,
		FamilyID: claims.FamilyID,
	}, nil
}

// Ping verifies the refresh store is reachable.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.refreshStore == nil {
		return 0, ErrEngineNotReady
	}
	d, err := e.refreshStore.Ping(ctx)
	if err != nil {
		return 0, ErrStorageUnavailable
	}
	return d, nil
}

// ListFamilies enumerates every live refresh-token family. Together with
// [Engine.RevokeFamily] it implements the admin "revoke all sessions"
// sweep; expired families drop out of the result as their keys expire.
func (e *Engine) ListFamilies(ctx context.Context) ([]string, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}
	ids, err := e.refreshStore.ListFamilies(ctx)
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	return ids, nil
}

// FamilyRecords lists every stored record in a family, for introspection
// and admin tooling.
func (e *Engine) FamilyRecords(ctx context.Context, familyID string) ([]*refresh.Record, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.refreshStore.FamilyRecords(ctx, familyID)
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	if len(records) == 0 {
		return nil, ErrFamilyNotFound
	}
	return records, nil
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subject, familyID, tokenID string, opErr error, metadataBuilder func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		FamilyID:  familyID,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		event.Metadata = map[string]string{"user_agent": ua}
	}
	if metadataBuilder != nil {
		extra := metadataBuilder()
		if event.Metadata == nil {
			event.Metadata = extra
		} else {
			for k, v := range extra {
				event.Metadata[k] = v
			}
		}
	}

	e.audit.emit(ctx, event)
}

func mapRateErr(err error, limited error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	case errors.Is(err, rate.ErrRedisUnavailable):
		return ErrStorageUnavailable
	default:
		return err
	}
}
