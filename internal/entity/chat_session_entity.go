package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id        uuid.UUID
	Title     string
	Files     []FileRecord
	Messages  []ChatMessage
	CreatedAt time.Time

	// Processing is set while a turn for this session is in flight.
	Processing bool
}

// FileIds returns the ids of the session's files in session order.
func (s *ChatSession) FileIds() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Files))
	for _, f := range s.Files {
		ids = append(ids, f.Id)
	}
	return ids
}

// Clone returns a deep copy so callers can read it without holding store locks.
func (s *ChatSession) Clone() ChatSession {
	c := *s
	c.Files = append([]FileRecord(nil), s.Files...)
	c.Messages = append([]ChatMessage(nil), s.Messages...)
	return c
}
