package rag

import (
	"sync"

	"docuchat/internal/models"
)

// Session holds the in-memory turn history of one conversation. Turns are
// appended, never mutated. The mutex serializes Ask calls on the same
// session; sessions are independent of each other.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []models.ChatMessage
}

func newSession(id string) *Session {
	return &Session{ID: id}
}

// History returns a copy of the session's turns in order.
func (s *Session) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.turns...)
}

// lastTurns returns up to n of the most recent turns. Callers must hold
// s.mu.
func (s *Session) lastTurns(n int) []models.ChatMessage {
	if n <= 0 || n >= len(s.turns) {
		return s.turns
	}
	return s.turns[len(s.turns)-n:]
}

// appendExchange records a completed question/answer pair. Callers must
// hold s.mu.
func (s *Session) appendExchange(question, answer string) {
	s.turns = append(s.turns,
		models.ChatMessage{Role: models.RoleUser, Content: question},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer},
	)
}
