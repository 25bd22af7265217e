package store

import (
	"strings"

	"docchat-be/internal/entity"

	"github.com/google/uuid"
)

// Sessions returns snapshots of all sessions in creation order.
func (s *SessionStore) Sessions() []entity.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.ChatSession, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out
}

func (s *SessionStore) Session(id uuid.UUID) (entity.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return entity.ChatSession{}, false
	}
	return sess.Clone(), true
}

func (s *SessionStore) ActiveSession() (entity.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[s.activeId]
	if !ok {
		return entity.ChatSession{}, false
	}
	return sess.Clone(), true
}

// ActiveSessionId returns uuid.Nil when no session is active.
func (s *SessionStore) ActiveSessionId() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeId
}

// Files returns every registered file in upload order.
func (s *SessionStore) Files() []entity.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.FileRecord, 0, len(s.fileOrder))
	for _, id := range s.fileOrder {
		out = append(out, s.files[id])
	}
	return out
}

func (s *SessionStore) File(id uuid.UUID) (entity.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	return f, ok
}

func (s *SessionStore) FileContent(id uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contents.Get(id)
}

// SelectedFileIds returns the selection in upload order.
func (s *SessionStore) SelectedFileIds() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedIdsLocked()
}

func (s *SessionStore) IsSelected(fileId uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.selected[fileId]
	return ok
}

// IsProcessing reports whether a turn is outstanding on the session.
func (s *SessionStore) IsProcessing(sessionId uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionId]
	return ok && sess.Processing
}

// SearchSessions matches the query against session titles, case-insensitively.
// A blank query returns every session.
func (s *SessionStore) SearchSessions(query string) []entity.ChatSession {
	q := strings.ToLower(strings.TrimSpace(query))
	all := s.Sessions()
	if q == "" {
		return all
	}

	out := make([]entity.ChatSession, 0, len(all))
	for _, sess := range all {
		if strings.Contains(strings.ToLower(sess.Title), q) {
			out = append(out, sess)
		}
	}
	return out
}

// SearchFiles matches the query against file names, case-insensitively.
func (s *SessionStore) SearchFiles(query string) []entity.FileRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	all := s.Files()
	if q == "" {
		return all
	}

	out := make([]entity.FileRecord, 0, len(all))
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out
}
