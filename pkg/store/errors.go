package store

import (
	"errors"
	"fmt"
	"strings"

	"docchat-be/internal/entity"

	"github.com/google/uuid"
)

var (
	ErrNoActiveSession     = errors.New("no active session")
	ErrNoRegeneratableTurn = errors.New("no user message to regenerate a reply for")
	ErrSessionNotFound     = errors.New("session not found")
	ErrFileNotFound        = errors.New("file not found")
)

// ValidationError reports bad user input. The store is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TurnInProgressError rejects a turn while another one is outstanding on the same session.
type TurnInProgressError struct {
	SessionId uuid.UUID
}

func (e *TurnInProgressError) Error() string {
	return fmt.Sprintf("session %s already has a turn in progress", e.SessionId)
}

type FileFailure struct {
	Name string
	Err  error
}

// IngestionError lists the files of a batch that could not be ingested.
// Files in Succeeded are registered regardless.
type IngestionError struct {
	Succeeded []entity.FileRecord
	Failed    []FileFailure
}

func (e *IngestionError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	return fmt.Sprintf("ingestion failed for %d of %d files: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(parts, "; "))
}

func (e *IngestionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// GenerationError is the recoverable failure of a turn's generator call.
// It never aborts a turn: the session still receives an assistant reply.
type GenerationError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
