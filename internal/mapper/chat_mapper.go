package mapper

import (
	"math"
	"strconv"

	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/internal/entity"

	"github.com/google/uuid"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// File Mappers

func (m *ChatMapper) FileToResponse(f entity.FileRecord, selected bool) dto.FileResponse {
	return dto.FileResponse{
		Id:         f.Id,
		Name:       f.Name,
		MediaType:  f.MediaType,
		Size:       f.SizeBytes,
		SizeLabel:  FormatFileSize(f.SizeBytes),
		UploadedAt: f.UploadedAt,
		Processed:  f.Processed,
		Selected:   selected,
	}
}

// FilesToResponse maps records, marking the ones in selected.
func (m *ChatMapper) FilesToResponse(files []entity.FileRecord, selected []uuid.UUID) []dto.FileResponse {
	set := make(map[uuid.UUID]struct{}, len(selected))
	for _, id := range selected {
		set[id] = struct{}{}
	}

	out := make([]dto.FileResponse, 0, len(files))
	for _, f := range files {
		_, ok := set[f.Id]
		out = append(out, m.FileToResponse(f, ok))
	}
	return out
}

// Message Mappers

func (m *ChatMapper) MessageToResponse(msg entity.ChatMessage) dto.MessageResponse {
	return dto.MessageResponse{
		Id:        msg.Id,
		Role:      msg.Role,
		Chat:      msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func (m *ChatMapper) MessagesToResponse(messages []entity.ChatMessage) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, m.MessageToResponse(msg))
	}
	return out
}

// Session Mappers

func (m *ChatMapper) SessionToSummary(s entity.ChatSession, activeId uuid.UUID) dto.SessionSummaryResponse {
	return dto.SessionSummaryResponse{
		Id:           s.Id,
		Title:        s.Title,
		FileCount:    len(s.Files),
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		Active:       s.Id == activeId,
		Processing:   s.Processing,
	}
}

func (m *ChatMapper) SessionToDetail(s entity.ChatSession, activeId uuid.UUID, selected []uuid.UUID) dto.SessionDetailResponse {
	return dto.SessionDetailResponse{
		Id:         s.Id,
		Title:      s.Title,
		Files:      m.FilesToResponse(s.Files, selected),
		Messages:   m.MessagesToResponse(s.Messages),
		CreatedAt:  s.CreatedAt,
		Active:     s.Id == activeId,
		Processing: s.Processing,
	}
}

func (m *ChatMapper) QuickActionToResponse(a constant.QuickAction) dto.QuickActionResponse {
	return dto.QuickActionResponse{Key: a.Key, Label: a.Label, Prompt: a.Prompt}
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with binary units and at most two
// decimals, e.g. 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	value, i := float64(bytes), 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}
