package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/elder-companion/backend/internal/model/chat"
	"github.com/zhouzirui/elder-companion/backend/internal/model/persona"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
)

// CompleterFactory returns the completer a new session should use for persona p.
type CompleterFactory func(p persona.Persona) Completer

// Service keeps independent sessions in memory, one Manager each.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Manager

	personas     persona.Store
	newCompleter CompleterFactory
	opts         []Option
	idleTTL      time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// ServiceConfig controls session lifetime.
type ServiceConfig struct {
	// IdleTTL evicts sessions with no transition for this long. Zero disables eviction.
	IdleTTL time.Duration
	// CompletionTimeout is applied to every session, see WithCompletionTimeout.
	CompletionTimeout time.Duration
	// Clock drives both session timestamps and idle eviction. Nil means time.Now in UTC.
	Clock func() time.Time
}

// NewService bootstraps the in-memory session registry.
func NewService(personas persona.Store, factory CompleterFactory, cfg ServiceConfig, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	base := []Option{WithCompletionTimeout(cfg.CompletionTimeout), WithClock(now)}
	return &Service{
		sessions:     make(map[string]*Manager),
		personas:     personas,
		newCompleter: factory,
		opts:         append(base, opts...),
		idleTTL:      cfg.IdleTTL,
		logger:       logger.Named("chat"),
		now:          now,
	}
}

// CreateSession provisions a session bound to a persona; empty personaID picks the default.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Snapshot, error) {
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return chat.Snapshot{}, ErrPersonaNotFound
	}

	id := uuid.NewString()
	opts := append([]Option{}, s.opts...)
	opts = append(opts,
		WithPersonaID(p.ID),
		WithGreeting(p.OpeningLine),
		WithLogger(s.logger),
	)
	manager := NewManager(id, s.newCompleter(p), opts...)

	s.mu.Lock()
	s.sessions[id] = manager
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", id), zap.String("persona_id", p.ID))
	return manager.Snapshot(), nil
}

// GetSession retrieves the manager of a session.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	manager, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return manager, nil
}

// LoadTranscript returns the messages of the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	manager, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return manager.Snapshot().Messages, nil
}

// Len reports how many sessions are live.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle closes sessions idle for longer than the configured TTL.
// Sessions awaiting a reply or watched by a subscriber are kept.
func (s *Service) EvictIdle() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, manager := range s.sessions {
		if !manager.CloseIfIdle(cutoff) {
			continue
		}
		delete(s.sessions, id)
		evicted++
		s.logger.Info("session evicted", zap.String("session_id", id))
	}
	return evicted
}

// Close shuts down every session.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Manager)
	s.mu.Unlock()

	for _, manager := range sessions {
		manager.Close()
	}
}
