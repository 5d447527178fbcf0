package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhouzirui/elder-companion/backend/internal/model/persona"
	"github.com/zhouzirui/elder-companion/backend/internal/service/completion"
)

func newTestService(t *testing.T, completer Completer, cfg ServiceConfig) *Service {
	t.Helper()
	store := persona.NewMemoryStore(persona.Seed())
	svc := NewService(store, func(persona.Persona) Completer { return completer }, cfg, nil)
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceCreateSessionUsesPersonaGreeting(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{})
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "companion")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if snap.PersonaID != "companion" {
		t.Fatalf("unexpected persona ID: %s", snap.PersonaID)
	}

	p, _ := persona.NewMemoryStore(persona.Seed()).FindByID("companion")
	if snap.Messages[0].Content != p.OpeningLine {
		t.Fatalf("expected persona greeting, got %q", snap.Messages[0].Content)
	}
}

func TestServiceCreateSessionDefaultPersona(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{})

	snap, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if snap.PersonaID != persona.DefaultID {
		t.Fatalf("expected default persona, got %s", snap.PersonaID)
	}
	if snap.Messages[0].Content != DefaultGreeting {
		t.Fatalf("unexpected greeting %q", snap.Messages[0].Content)
	}
}

func TestServiceCreateSessionUnknownPersona(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{})

	if _, err := svc.CreateSession(context.Background(), "nobody"); !errors.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestServiceGetSession(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{})
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, snap.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.ID() != snap.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID(), snap.ID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{})

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.LoadTranscript(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceSessionsAreIndependent(t *testing.T) {
	svc := newTestService(t, &stubCompleter{result: completion.Result{Text: "好的"}}, ServiceConfig{})
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, "")
	b, _ := svc.CreateSession(ctx, "")

	managerA, _ := svc.GetSession(ctx, a.ID)
	if _, err := managerA.Submit(ctx, "你好"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	managerA.Wait()

	transcriptA, _ := svc.LoadTranscript(ctx, a.ID)
	transcriptB, _ := svc.LoadTranscript(ctx, b.ID)
	if len(transcriptA) != 3 || len(transcriptB) != 1 {
		t.Fatalf("sessions leaked state: %d / %d", len(transcriptA), len(transcriptB))
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestServiceUsesClockForTimestamps(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{Clock: clock.Now})

	snap, _ := svc.CreateSession(context.Background(), "")
	if !snap.CreatedAt.Equal(clock.Now()) || !snap.Messages[0].CreatedAt.Equal(clock.Now()) {
		t.Fatalf("expected clock time, got %s / %s", snap.CreatedAt, snap.Messages[0].CreatedAt)
	}
}

func TestServiceEvictIdle(t *testing.T) {
	clock := newFakeClock()
	gate := newGatedCompleter()
	svc := newTestService(t, gate, ServiceConfig{IdleTTL: time.Hour, Clock: clock.Now})
	ctx := context.Background()

	idle, _ := svc.CreateSession(ctx, "")
	busy, _ := svc.CreateSession(ctx, "")
	busyManager, _ := svc.GetSession(ctx, busy.ID)
	if _, err := busyManager.Submit(ctx, "你好"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	if n := svc.EvictIdle(); n != 0 {
		t.Fatalf("fresh sessions must not be evicted, got %d", n)
	}

	clock.Advance(2 * time.Hour)
	if n := svc.EvictIdle(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, err := svc.GetSession(ctx, idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("idle session should be gone")
	}
	if _, err := svc.GetSession(ctx, busy.ID); err != nil {
		t.Fatal("session awaiting a reply must be kept")
	}
}

func TestServiceEvictIdleKeepsSubscribedSessions(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{IdleTTL: time.Minute, Clock: clock.Now})
	ctx := context.Background()

	snap, _ := svc.CreateSession(ctx, "")
	manager, _ := svc.GetSession(ctx, snap.ID)
	_, cancel := manager.Subscribe()

	clock.Advance(time.Hour)
	if n := svc.EvictIdle(); n != 0 {
		t.Fatalf("watched session must be kept, got %d evictions", n)
	}

	cancel()
	if n := svc.EvictIdle(); n != 1 {
		t.Fatalf("expected eviction once unwatched, got %d", n)
	}
}

func TestServiceEvictedManagerRejectsSubmit(t *testing.T) {
	clock := newFakeClock()
	completer := &stubCompleter{result: completion.Result{Text: "好的"}}
	svc := newTestService(t, completer, ServiceConfig{IdleTTL: time.Minute, Clock: clock.Now})
	ctx := context.Background()

	snap, _ := svc.CreateSession(ctx, "")
	manager, _ := svc.GetSession(ctx, snap.ID)

	clock.Advance(time.Hour)
	if n := svc.EvictIdle(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}

	// 已持有 manager 的调用方不能在淘汰后再开启新一轮对话
	got, err := manager.Submit(ctx, "你好")
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if len(got.Messages) != 1 || atomic.LoadInt32(&completer.calls) != 0 {
		t.Fatalf("evicted session must not change, got %d messages", len(got.Messages))
	}
}

func TestManagerCloseIfIdle(t *testing.T) {
	clock := newFakeClock()
	gate := newGatedCompleter()
	m := NewManager("", gate, WithClock(clock.Now))
	defer m.Close()

	if m.CloseIfIdle(clock.Now().Add(-time.Minute)) {
		t.Fatal("recently active session must stay open")
	}
	if _, err := m.Submit(context.Background(), "你好"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	clock.Advance(time.Hour)
	if m.CloseIfIdle(clock.Now()) {
		t.Fatal("session with a pending reply must stay open")
	}

	gate.gate <- outcome{result: completion.Result{Text: "好的"}}
	m.Wait()
	clock.Advance(time.Hour)
	if !m.CloseIfIdle(clock.Now().Add(-time.Minute)) {
		t.Fatal("expected idle session to close")
	}
	if m.CloseIfIdle(clock.Now()) {
		t.Fatal("closing twice must report false")
	}
}

func TestServiceEvictIdleDisabled(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{Clock: clock.Now})
	_, _ = svc.CreateSession(context.Background(), "")

	clock.Advance(24 * time.Hour)
	if n := svc.EvictIdle(); n != 0 {
		t.Fatalf("zero TTL disables eviction, got %d", n)
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{IdleTTL: time.Minute})
	if _, err := NewSweeper(svc, "not a schedule", nil); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestSweeperSweep(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, &stubCompleter{}, ServiceConfig{IdleTTL: time.Minute, Clock: clock.Now})
	_, _ = svc.CreateSession(context.Background(), "")

	sweeper, err := NewSweeper(svc, "@every 5m", nil)
	if err != nil {
		t.Fatalf("NewSweeper err: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	clock.Advance(time.Hour)
	sweeper.sweep()
	if svc.Len() != 0 {
		t.Fatalf("expected sweep to evict, %d sessions left", svc.Len())
	}
}
