package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAuditEventsFlowToSink(t *testing.T) {
	sink := NewChannelSink(64)
	cfg := newTestConfig()
	cfg.Audit.Enabled = true

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentials(seedCredentials(t, cfg)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithClientIP(context.Background(), "203.0.113.7")

	pair, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("replay error = %v, want ErrTokenReplayed", err)
	}

	want := map[string]bool{
		EventLoginSuccess:    false,
		EventRefreshSuccess:  false,
		EventRefreshReplayed: false,
		EventRotateConflict:  false,
		EventFamilyRevoked:   false,
	}

	deadline := time.After(2 * time.Second)
	for {
		remaining := false
		for _, seen := range want {
			if !seen {
				remaining = true
			}
		}
		if !remaining {
			break
		}

		select {
		case event := <-sink.Events():
			if _, tracked := want[event.EventType]; tracked {
				want[event.EventType] = true
			}
			if event.EventType == EventLoginSuccess {
				if event.Subject != testEmail {
					t.Fatalf("login event subject = %q, want %q", event.Subject, testEmail)
				}
				if event.IP != "203.0.113.7" {
					t.Fatalf("login event IP = %q", event.IP)
				}
				if event.FamilyID != pair.FamilyID {
					t.Fatalf("login event family = %q, want %q", event.FamilyID, pair.FamilyID)
				}
			}
			if event.EventType == EventRefreshReplayed && event.FamilyID != pair.FamilyID {
				t.Fatalf("replay event family = %q, want %q", event.FamilyID, pair.FamilyID)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for events, seen: %v", want)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	engine, _ := newTestEngine(t, newTestConfig())

	if _, err := engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if engine.audit != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero dropped events")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := blockingSink{release: block}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(block)
		d.close()
	}()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d.emit(ctx, AuditEvent{EventType: EventLoginFailure})
	}

	if d.droppedCount() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.emit(ctx, AuditEvent{EventType: EventLogout})
	}
	d.close()

	got := 0
	for {
		select {
		case <-sink.Events():
			got++
		default:
			if got != 5 {
				t.Fatalf("drained %d events, want 5", got)
			}
			return
		}
	}
}

func TestJSONWriterSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLoginSuccess,
		Subject:   testEmail,
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: EventLoginFailure,
		Error:     ErrInvalidCredentials.Error(),
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(ctx context.Context, _ AuditEvent) {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
}
