package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/pkg/events"

	"github.com/google/uuid"
)

// TurnResult is the outcome of a completed turn. Failure carries a
// *GenerationError when the reply is the fixed error text; it is a report,
// not an error of the operation.
type TurnResult struct {
	SessionId uuid.UUID
	Sent      entity.ChatMessage
	Reply     entity.ChatMessage
	Failure   error
	// Recorded is false when the session was deleted before the reply arrived.
	Recorded bool
}

// Turn is a turn whose user side is already recorded and whose reply may
// still be pending.
type Turn struct {
	SessionId uuid.UUID
	Sent      entity.ChatMessage

	done   chan struct{}
	result *TurnResult
}

func newTurn(sessionId uuid.UUID, sent entity.ChatMessage) *Turn {
	return &Turn{SessionId: sessionId, Sent: sent, done: make(chan struct{})}
}

// Done is closed once the reply has been appended.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the reply is available. Giving up on ctx does not cancel
// the turn itself.
func (t *Turn) Wait(ctx context.Context) (*TurnResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Turn) finish(result *TurnResult) {
	t.result = result
	close(t.done)
}

// SendTurn records message as a user turn on the active session and waits for
// the assistant reply.
func (s *SessionStore) SendTurn(ctx context.Context, message string) (*TurnResult, error) {
	turn, err := s.StartTurn(ctx, message)
	if err != nil {
		return nil, err
	}
	return turn.Wait(ctx)
}

// StartTurn appends the user message before returning and produces the reply
// in the background. The documents are the selected files of the active
// session; with none, the advisory reply is appended right away.
func (s *SessionStore) StartTurn(ctx context.Context, message string) (*Turn, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	s.mu.Lock()
	sess, err := s.activeForTurnLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	sent := s.newMessage(constant.ChatMessageRoleUser, message)
	sess.Messages = append(sess.Messages, sent)
	documents := s.selectedContentLocked(sess)
	turn := newTurn(sess.Id, sent)

	if len(documents) == 0 {
		reply := s.newMessage(constant.ChatMessageRoleAssistant, constant.NoFileSelectedMessage)
		sess.Messages = append(sess.Messages, reply)
		s.mu.Unlock()

		s.emit(ctx,
			messageEvent(events.MessageAppended, sess.Id, sent),
			messageEvent(events.MessageAppended, sess.Id, reply),
		)
		turn.finish(&TurnResult{SessionId: sess.Id, Sent: sent, Reply: reply, Recorded: true})
		return turn, nil
	}

	sess.Processing = true
	s.mu.Unlock()

	s.logger.Info("SessionStore", "Turn started", map[string]interface{}{
		"session_id": sess.Id.String(),
		"documents":  len(documents),
	})
	s.emit(ctx,
		messageEvent(events.MessageAppended, sess.Id, sent),
		events.New(events.TurnStarted, map[string]interface{}{"session_id": sess.Id.String(), "kind": "send"}),
	)

	go s.runTurn(ctx, turn, message, documents)
	return turn, nil
}

// RegenerateLastTurn replaces the trailing assistant reply, if any, with a new
// one for the most recent user message.
func (s *SessionStore) RegenerateLastTurn(ctx context.Context) (*TurnResult, error) {
	turn, err := s.StartRegenerate(ctx)
	if err != nil {
		return nil, err
	}
	return turn.Wait(ctx)
}

// StartRegenerate is the two-phase form of RegenerateLastTurn. Unlike
// StartTurn it uses the text of every file in the session, not the selection.
func (s *SessionStore) StartRegenerate(ctx context.Context) (*Turn, error) {
	s.mu.Lock()
	sess, err := s.activeForTurnLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	userIdx := lastUserMessage(sess.Messages)
	if userIdx < 0 {
		s.mu.Unlock()
		return nil, ErrNoRegeneratableTurn
	}
	query := sess.Messages[userIdx]

	var removed *entity.ChatMessage
	if last := len(sess.Messages) - 1; sess.Messages[last].Role == constant.ChatMessageRoleAssistant {
		m := sess.Messages[last]
		removed = &m
		sess.Messages = sess.Messages[:last]
	}

	documents := s.sessionContentLocked(sess)
	turn := newTurn(sess.Id, query)

	evs := make([]events.Event, 0, 3)
	if removed != nil {
		evs = append(evs, messageEvent(events.MessageRemoved, sess.Id, *removed))
	}

	if len(documents) == 0 {
		reply := s.newMessage(constant.ChatMessageRoleAssistant, constant.NoFileSelectedMessage)
		sess.Messages = append(sess.Messages, reply)
		s.mu.Unlock()

		evs = append(evs, messageEvent(events.MessageAppended, sess.Id, reply))
		s.emit(ctx, evs...)
		turn.finish(&TurnResult{SessionId: sess.Id, Sent: query, Reply: reply, Recorded: true})
		return turn, nil
	}

	sess.Processing = true
	s.mu.Unlock()

	s.logger.Info("SessionStore", "Regeneration started", map[string]interface{}{
		"session_id":      sess.Id.String(),
		"removed_message": removed != nil,
		"documents":       len(documents),
	})
	evs = append(evs, events.New(events.TurnStarted, map[string]interface{}{"session_id": sess.Id.String(), "kind": "regenerate"}))
	s.emit(ctx, evs...)

	go s.runTurn(ctx, turn, query.Content, documents)
	return turn, nil
}

func (s *SessionStore) activeForTurnLocked() (*entity.ChatSession, error) {
	sess, ok := s.sessions[s.activeId]
	if s.activeId == uuid.Nil || !ok {
		return nil, ErrNoActiveSession
	}
	if sess.Processing {
		return nil, &TurnInProgressError{SessionId: sess.Id}
	}
	return sess, nil
}

// runTurn calls the generator detached from the caller's cancellation but
// bounded by the turn timeout, then completes the turn whatever happened.
func (s *SessionStore) runTurn(ctx context.Context, turn *Turn, query string, documents []string) {
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	defer cancel()

	text, err := s.generate(genCtx, query, documents)
	s.completeTurn(genCtx, turn, text, err)
}

func (s *SessionStore) generate(ctx context.Context, query string, documents []string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panicked: %v", r)
		}
	}()
	text, err = s.generator.Generate(ctx, query, documents)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("generator returned an empty reply")
	}
	return text, err
}

func (s *SessionStore) completeTurn(ctx context.Context, turn *Turn, text string, genErr error) {
	var failure *GenerationError
	content := text
	if genErr != nil {
		failure = &GenerationError{Message: genErr.Error(), Err: genErr}
		if errors.Is(genErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			failure.Timeout = true
			failure.Message = fmt.Sprintf("timed out after %s", s.turnTimeout)
		}
		content = constant.GenerationErrorMessage
	}

	s.mu.Lock()
	reply := s.newMessage(constant.ChatMessageRoleAssistant, content)
	sess, recorded := s.sessions[turn.SessionId]
	if recorded {
		sess.Messages = append(sess.Messages, reply)
		sess.Processing = false
	}
	s.mu.Unlock()

	result := &TurnResult{SessionId: turn.SessionId, Sent: turn.Sent, Reply: reply, Recorded: recorded}
	evs := make([]events.Event, 0, 2)
	if recorded {
		evs = append(evs, messageEvent(events.MessageAppended, turn.SessionId, reply))
	} else {
		s.logger.Warn("SessionStore", "Session deleted before reply arrived", map[string]interface{}{
			"session_id": turn.SessionId.String(),
		})
	}

	if failure != nil {
		result.Failure = failure
		s.logger.Error("SessionStore", "Turn failed", map[string]interface{}{
			"session_id": turn.SessionId.String(),
			"error":      failure.Error(),
			"timeout":    failure.Timeout,
		})
		evs = append(evs, events.New(events.TurnFailed, map[string]interface{}{
			"session_id": turn.SessionId.String(),
			"message_id": reply.Id.String(),
			"error":      failure.Message,
			"timeout":    failure.Timeout,
		}))
	} else {
		evs = append(evs, events.New(events.TurnCompleted, map[string]interface{}{
			"session_id": turn.SessionId.String(),
			"message_id": reply.Id.String(),
		}))
	}

	s.emit(context.WithoutCancel(ctx), evs...)
	turn.finish(result)
}

// selectedContentLocked returns the non-blank text of the session's selected
// files in session order.
func (s *SessionStore) selectedContentLocked(sess *entity.ChatSession) []string {
	documents := make([]string, 0, len(sess.Files))
	for _, f := range sess.Files {
		if _, ok := s.selected[f.Id]; !ok {
			continue
		}
		if text, ok := s.contents.Get(f.Id); ok && strings.TrimSpace(text) != "" {
			documents = append(documents, text)
		}
	}
	return documents
}

// sessionContentLocked returns the non-blank text of all the session's files.
func (s *SessionStore) sessionContentLocked(sess *entity.ChatSession) []string {
	documents := make([]string, 0, len(sess.Files))
	for _, f := range sess.Files {
		if text, ok := s.contents.Get(f.Id); ok && strings.TrimSpace(text) != "" {
			documents = append(documents, text)
		}
	}
	return documents
}

func (s *SessionStore) newMessage(role, content string) entity.ChatMessage {
	return entity.ChatMessage{
		Id:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
}

func lastUserMessage(messages []entity.ChatMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == constant.ChatMessageRoleUser {
			return i
		}
	}
	return -1
}

func messageEvent(eventType string, sessionId uuid.UUID, m entity.ChatMessage) events.Event {
	return events.New(eventType, map[string]interface{}{
		"session_id": sessionId.String(),
		"message_id": m.Id.String(),
		"role":       m.Role,
		"content":    m.Content,
		"created_at": m.CreatedAt,
	})
}
