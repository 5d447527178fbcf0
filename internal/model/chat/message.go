package chat

import (
	"time"

	"github.com/zhouzirui/elder-companion/backend/internal/analysis/emotion"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Status is the variant tag of a message: a committed turn, the provisional
// assistant placeholder, or a placeholder that resolved to the apology text.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Message is one turn in the conversation log.
type Message struct {
	ID        string        `json:"id"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	Emotion   emotion.Label `json:"emotion,omitempty"`
	Status    Status        `json:"status"`
	Failure   string        `json:"failure,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Pending reports whether the message is the unresolved assistant placeholder.
func (m Message) Pending() bool {
	return m.Status == StatusPending
}
