package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a read-only copy of a session's state after a transition.
type Snapshot struct {
	Session
	Messages        []Message `json:"messages"`
	SuggestedTopics []string  `json:"suggestedTopics"`
	HasPending      bool      `json:"hasPending"`
	Recording       bool      `json:"recording"`
	Version         uint64    `json:"version"`
}

// Last returns the final message of the log.
func (s Snapshot) Last() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}
