package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/elder-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/elder-companion/backend/internal/analysis/topic"
	"github.com/zhouzirui/elder-companion/backend/internal/model/chat"
	"github.com/zhouzirui/elder-companion/backend/internal/service/completion"
)

const (
	// PendingText is shown while the assistant reply is in flight.
	PendingText = "正在思考..."
	// ApologyText replaces the placeholder when the completion fails for any reason.
	ApologyText = "抱歉，我遇到了一些问题，无法回应您的消息。"
	// VoiceTranscript stands in for speech-to-text output.
	VoiceTranscript = "我今天感觉有点不舒服"
	// DefaultGreeting seeds the log when no persona greeting is supplied.
	DefaultGreeting = "您好！我们可以聊点什么呢？"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrEmptyMessage  = fmt.Errorf("%w: message text is empty", ErrValidation)
	ErrReplyPending  = fmt.Errorf("%w: a reply is still pending", ErrValidation)
	ErrSessionClosed = errors.New("session closed")
)

// Completer produces the assistant reply for one user message.
type Completer interface {
	Complete(ctx context.Context, userText string) (completion.Result, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClassifier replaces the default emotion rule table.
func WithClassifier(c *emotion.Classifier) Option {
	return func(m *Manager) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithTopicEngine replaces the default topic rule table.
func WithTopicEngine(e *topic.Engine) Option {
	return func(m *Manager) {
		if e != nil {
			m.topics = e
		}
	}
}

// WithCompletionTimeout races every completion against a timer; expiry resolves
// the turn as a transport failure. Zero means wait indefinitely.
func WithCompletionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithGreeting sets the seeded assistant message.
func WithGreeting(text string) Option {
	return func(m *Manager) {
		if strings.TrimSpace(text) != "" {
			m.greeting = text
		}
	}
}

// WithPersonaID records the persona bound to the session.
func WithPersonaID(id string) Option {
	return func(m *Manager) {
		m.session.PersonaID = id
	}
}

// WithClock overrides the time source used for timestamps and idle tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns one conversation log and drives the
// Idle -> AwaitingCompletion -> Idle state machine.
//
// The log always starts with an assistant greeting. At most one pending
// assistant message exists, and only at the tail.
type Manager struct {
	mu         sync.Mutex
	session    chat.Session
	messages   []chat.Message
	suggested  []string
	pendingID  string
	recording  bool
	version    uint64
	lastActive time.Time
	closed     bool

	subs    map[int]chan chat.Snapshot
	nextSub int

	completer  Completer
	classifier *emotion.Classifier
	topics     *topic.Engine
	logger     *zap.Logger
	timeout    time.Duration
	greeting   string
	now        func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewManager seeds a session log. An empty id gets a generated one.
func NewManager(id string, completer Completer, opts ...Option) *Manager {
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		session:    chat.Session{ID: id},
		subs:       make(map[int]chan chat.Snapshot),
		completer:  completer,
		classifier: emotion.NewClassifier(nil),
		topics:     topic.NewEngine(nil, nil),
		logger:     zap.NewNop(),
		greeting:   DefaultGreeting,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("session_id", id))

	now := m.now()
	m.session.CreatedAt = now
	m.lastActive = now
	m.messages = make([]chat.Message, 0, 16)
	m.messages = append(m.messages, chat.Message{
		ID:        uuid.NewString(),
		Sender:    chat.SenderAssistant,
		Content:   m.greeting,
		Emotion:   m.classifier.Classify(m.greeting),
		Status:    chat.StatusResolved,
		CreatedAt: now,
	})
	m.suggested = m.topics.Defaults()
	return m
}

// ID returns the session identifier.
func (m *Manager) ID() string {
	return m.session.ID
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() chat.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// HasPending reports whether a reply is in flight.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingID != ""
}

// LastActive is the time of the most recent transition.
func (m *Manager) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// Submit appends the user message and a pending assistant placeholder, then
// requests the reply in the background. The completion runs on the session's
// own context so it outlives ctx.
func (m *Manager) Submit(ctx context.Context, text string) (chat.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	snap, query, pendingID, err := m.submitLocked(text)
	m.mu.Unlock()
	if err != nil {
		return snap, err
	}

	go m.resolve(pendingID, query)
	return snap, nil
}

// SelectTopic submits a suggested topic as if the user had typed it.
func (m *Manager) SelectTopic(ctx context.Context, topicText string) (chat.Snapshot, error) {
	return m.Submit(ctx, topicText)
}

// ToggleVoiceCapture starts a simulated recording on the first call; the
// second call stops it and submits VoiceTranscript.
func (m *Manager) ToggleVoiceCapture(ctx context.Context) (chat.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	if m.closed {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrSessionClosed
	}
	if !m.recording {
		m.recording = true
		snap := m.commitLocked()
		m.mu.Unlock()
		m.logger.Debug("voice capture started")
		return snap, nil
	}

	m.recording = false
	snap, query, pendingID, err := m.submitLocked(VoiceTranscript)
	if err != nil {
		// the recording flag still flips off
		snap = m.commitLocked()
	}
	m.mu.Unlock()
	if err != nil {
		return snap, err
	}

	m.logger.Debug("voice capture finished", zap.String("transcript", query))
	go m.resolve(pendingID, query)
	return snap, nil
}

// Subscribe streams a snapshot after every transition, starting with the
// current one. Slow readers only miss intermediate snapshots, never the latest.
func (m *Manager) Subscribe() (<-chan chat.Snapshot, func()) {
	ch := make(chan chat.Snapshot, 4)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Wait blocks until no completion is in flight.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Close cancels an in-flight completion (it resolves as a failure), waits for
// it and closes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.shutdown()
}

// CloseIfIdle closes the session only if it has no pending reply, no live
// subscriber and no transition after cutoff. The check and the close happen
// under one lock, so a concurrent Submit either wins or gets ErrSessionClosed.
func (m *Manager) CloseIfIdle(cutoff time.Time) bool {
	m.mu.Lock()
	if m.closed || m.pendingID != "" || len(m.subs) > 0 || m.lastActive.After(cutoff) {
		m.mu.Unlock()
		return false
	}
	m.closed = true
	m.mu.Unlock()

	m.shutdown()
	return true
}

func (m *Manager) shutdown() {
	m.cancel()
	m.inflight.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) submitLocked(text string) (chat.Snapshot, string, string, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return m.snapshotLocked(), "", "", ErrEmptyMessage
	}
	if m.closed {
		return m.snapshotLocked(), "", "", ErrSessionClosed
	}
	if m.pendingID != "" {
		return m.snapshotLocked(), "", "", ErrReplyPending
	}

	now := m.now()
	user := chat.Message{
		ID:        uuid.NewString(),
		Sender:    chat.SenderUser,
		Content:   query,
		Emotion:   m.classifier.Classify(query),
		Status:    chat.StatusResolved,
		CreatedAt: now,
	}
	placeholder := chat.Message{
		ID:        uuid.NewString(),
		Sender:    chat.SenderAssistant,
		Content:   PendingText,
		Status:    chat.StatusPending,
		CreatedAt: now,
	}

	m.messages = append(m.messages, user, placeholder)
	m.pendingID = placeholder.ID
	m.suggested = m.topics.Suggest(query)
	m.lastActive = now
	m.inflight.Add(1)

	m.logger.Info("user message accepted",
		zap.String("message_id", user.ID),
		zap.String("emotion", string(user.Emotion)),
		zap.String("topic_category", m.topics.Category(query)),
		zap.Int("log_length", len(m.messages)))

	return m.commitLocked(), query, placeholder.ID, nil
}

type outcome struct {
	result completion.Result
	err    error
}

func (m *Manager) resolve(pendingID, query string) {
	defer m.inflight.Done()

	ctx := m.ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		res, err := m.completer.Complete(ctx, query)
		done <- outcome{result: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = &completion.Error{Kind: completion.KindTransport, Message: "completion abandoned", Err: ctx.Err()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.messages) - 1
	if m.pendingID != pendingID || m.messages[idx].ID != pendingID {
		m.logger.Error("pending message missing at resolution", zap.String("message_id", pendingID))
		return
	}

	msg := m.messages[idx]
	if out.err != nil {
		kind := completion.KindOf(out.err)
		if kind == "" {
			kind = completion.KindTransport
		}
		m.logger.Error("completion failed, replying with apology",
			zap.String("message_id", pendingID),
			zap.String("kind", string(kind)),
			zap.Error(out.err))
		msg.Content = ApologyText
		msg.Emotion = emotion.Sad
		msg.Status = chat.StatusFailed
		msg.Failure = string(kind)
	} else {
		msg.Content = out.result.Text
		msg.Emotion = m.classifier.Classify(out.result.Text)
		msg.Status = chat.StatusResolved
		m.logger.Info("assistant reply resolved",
			zap.String("message_id", pendingID),
			zap.String("model", out.result.Model),
			zap.String("emotion", string(msg.Emotion)))
	}

	m.messages[idx] = msg
	m.pendingID = ""
	m.lastActive = m.now()
	m.commitLocked()
}

// commitLocked bumps the version and fans the new snapshot out to subscribers.
func (m *Manager) commitLocked() chat.Snapshot {
	m.version++
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}

func (m *Manager) snapshotLocked() chat.Snapshot {
	messages := make([]chat.Message, len(m.messages))
	copy(messages, m.messages)
	return chat.Snapshot{
		Session:         m.session,
		Messages:        messages,
		SuggestedTopics: append([]string(nil), m.suggested...),
		HasPending:      m.pendingID != "",
		Recording:       m.recording,
		Version:         m.version,
	}
}
