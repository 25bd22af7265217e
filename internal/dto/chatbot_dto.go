package dto

import (
	"time"

	"github.com/google/uuid"
)

type StateResponse struct {
	ActiveSessionId *uuid.UUID  `json:"active_session_id"`
	SelectedFileIds []uuid.UUID `json:"selected_file_ids"`
}

type FileResponse struct {
	Id         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	MediaType  string    `json:"media_type"`
	Size       int64     `json:"size"`
	SizeLabel  string    `json:"size_label"`
	UploadedAt time.Time `json:"uploaded_at"`
	Processed  bool      `json:"processed"`
	Selected   bool      `json:"selected"`
}

type MessageResponse struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Chat      string    `json:"chat"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionSummaryResponse struct {
	Id           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	FileCount    int       `json:"file_count"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"active"`
	Processing   bool      `json:"processing"`
}

type SessionDetailResponse struct {
	Id         uuid.UUID         `json:"id"`
	Title      string            `json:"title"`
	Files      []FileResponse    `json:"files"`
	Messages   []MessageResponse `json:"messages"`
	CreatedAt  time.Time         `json:"created_at"`
	Active     bool              `json:"active"`
	Processing bool              `json:"processing"`
}

type CreateSessionRequest struct {
	FileIds []uuid.UUID `json:"file_ids" validate:"max=100"`
}

type RenameSessionRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type SendChatRequest struct {
	Chat string `json:"chat" validate:"required,max=20000"`
}

type SendChatResponse struct {
	ChatSessionId uuid.UUID       `json:"chat_session_id"`
	Sent          MessageResponse `json:"sent"`
	Reply         MessageResponse `json:"reply"`
	// Failed is set when Reply is the fixed error text.
	Failed   bool   `json:"failed"`
	Error    string `json:"error,omitempty"`
	Timeout  bool   `json:"timeout,omitempty"`
	Recorded bool   `json:"recorded"`
}

type ToggleFileResponse struct {
	FileId   uuid.UUID `json:"file_id"`
	Selected bool      `json:"selected"`
}

type FailedUploadDTO struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type UploadFilesResponse struct {
	SessionId *uuid.UUID        `json:"session_id"`
	Files     []FileResponse    `json:"files"`
	Skipped   []string          `json:"skipped,omitempty"`
	Failed    []FailedUploadDTO `json:"failed,omitempty"`
	Warning   string            `json:"warning,omitempty"`
}

type QuickActionResponse struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}
