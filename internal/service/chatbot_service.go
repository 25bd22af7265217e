package service

import (
	"context"
	"errors"

	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/mapper"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/ingest"
	"docchat-be/pkg/store"

	"github.com/google/uuid"
)

// IChatbotService defines the chatbot service interface
type IChatbotService interface {
	GetState(ctx context.Context) (*dto.StateResponse, error)

	GetAllSessions(ctx context.Context, query string) ([]dto.SessionSummaryResponse, error)
	GetSession(ctx context.Context, id uuid.UUID) (*dto.SessionDetailResponse, error)
	CreateSession(ctx context.Context, request *dto.CreateSessionRequest) (*dto.SessionDetailResponse, error)
	RenameSession(ctx context.Context, id uuid.UUID, request *dto.RenameSessionRequest) (*dto.SessionSummaryResponse, error)
	ActivateSession(ctx context.Context, id uuid.UUID) (*dto.StateResponse, error)
	DeleteSession(ctx context.Context, id uuid.UUID) (*dto.StateResponse, error)

	GetFiles(ctx context.Context, query string) ([]dto.FileResponse, error)
	UploadFiles(ctx context.Context, files []entity.RawFile, sessionId uuid.UUID) (*dto.UploadFilesResponse, error)
	ToggleFile(ctx context.Context, id uuid.UUID) (*dto.ToggleFileResponse, error)
	DeleteFile(ctx context.Context, id uuid.UUID) error

	SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	RegenerateChat(ctx context.Context) (*dto.SendChatResponse, error)
	GetQuickActions(ctx context.Context) []dto.QuickActionResponse
	RunQuickAction(ctx context.Context, key string) (*dto.SendChatResponse, error)
}

type chatbotService struct {
	store  *store.SessionStore
	mapper *mapper.ChatMapper
	logger logger.ILogger
}

func NewChatbotService(sessionStore *store.SessionStore, log logger.ILogger) IChatbotService {
	return &chatbotService{
		store:  sessionStore,
		mapper: mapper.NewChatMapper(),
		logger: log,
	}
}

func (cs *chatbotService) GetState(ctx context.Context) (*dto.StateResponse, error) {
	return cs.state(), nil
}

func (cs *chatbotService) state() *dto.StateResponse {
	res := &dto.StateResponse{SelectedFileIds: cs.store.SelectedFileIds()}
	if id := cs.store.ActiveSessionId(); id != uuid.Nil {
		res.ActiveSessionId = &id
	}
	return res
}

func (cs *chatbotService) GetAllSessions(ctx context.Context, query string) ([]dto.SessionSummaryResponse, error) {
	activeId := cs.store.ActiveSessionId()
	sessions := cs.store.SearchSessions(query)

	res := make([]dto.SessionSummaryResponse, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, cs.mapper.SessionToSummary(s, activeId))
	}
	return res, nil
}

func (cs *chatbotService) GetSession(ctx context.Context, id uuid.UUID) (*dto.SessionDetailResponse, error) {
	sess, ok := cs.store.Session(id)
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	res := cs.mapper.SessionToDetail(sess, cs.store.ActiveSessionId(), cs.store.SelectedFileIds())
	return &res, nil
}

// CreateSession starts a session over already uploaded files.
func (cs *chatbotService) CreateSession(ctx context.Context, request *dto.CreateSessionRequest) (*dto.SessionDetailResponse, error) {
	files := make([]entity.FileRecord, 0, len(request.FileIds))
	for _, id := range request.FileIds {
		f, ok := cs.store.File(id)
		if !ok {
			return nil, store.ErrFileNotFound
		}
		files = append(files, f)
	}

	sess := cs.store.CreateSession(files...)
	res := cs.mapper.SessionToDetail(sess, sess.Id, cs.store.SelectedFileIds())
	return &res, nil
}

func (cs *chatbotService) RenameSession(ctx context.Context, id uuid.UUID, request *dto.RenameSessionRequest) (*dto.SessionSummaryResponse, error) {
	if _, ok := cs.store.Session(id); !ok {
		return nil, store.ErrSessionNotFound
	}
	if err := cs.store.RenameSession(id, request.Title); err != nil {
		return nil, err
	}

	sess, ok := cs.store.Session(id)
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	res := cs.mapper.SessionToSummary(sess, cs.store.ActiveSessionId())
	return &res, nil
}

func (cs *chatbotService) ActivateSession(ctx context.Context, id uuid.UUID) (*dto.StateResponse, error) {
	if err := cs.store.ActivateSession(id); err != nil {
		return nil, err
	}
	return cs.state(), nil
}

func (cs *chatbotService) DeleteSession(ctx context.Context, id uuid.UUID) (*dto.StateResponse, error) {
	if _, ok := cs.store.Session(id); !ok {
		return nil, store.ErrSessionNotFound
	}
	cs.store.DeleteSession(id)
	return cs.state(), nil
}

func (cs *chatbotService) GetFiles(ctx context.Context, query string) ([]dto.FileResponse, error) {
	return cs.mapper.FilesToResponse(cs.store.SearchFiles(query), cs.store.SelectedFileIds()), nil
}

// UploadFiles drops unsupported extensions with a warning, then ingests the
// rest. A partially failed batch is not an error: the failures are listed in
// the response next to the files that made it in.
func (cs *chatbotService) UploadFiles(ctx context.Context, files []entity.RawFile, sessionId uuid.UUID) (*dto.UploadFilesResponse, error) {
	accepted, skipped := ingest.Partition(files)
	if len(accepted) == 0 {
		return nil, &store.ValidationError{Field: "files", Reason: constant.SkippedFilesWarning}
	}
	if len(skipped) > 0 {
		cs.logger.Warn("ChatbotService", "Skipped unsupported files", map[string]interface{}{"skipped": skipped})
	}

	records, err := cs.store.IngestFiles(ctx, accepted, sessionId)

	var ingestErr *store.IngestionError
	if err != nil && (!errors.As(err, &ingestErr) || len(records) == 0) {
		return nil, err
	}

	res := &dto.UploadFilesResponse{
		Files:   cs.mapper.FilesToResponse(records, cs.store.SelectedFileIds()),
		Skipped: skipped,
	}
	if len(skipped) > 0 {
		res.Warning = constant.SkippedFilesWarning
	}
	if ingestErr != nil {
		for _, f := range ingestErr.Failed {
			res.Failed = append(res.Failed, dto.FailedUploadDTO{Name: f.Name, Error: f.Err.Error()})
		}
	}

	target := sessionId
	if target == uuid.Nil {
		target = cs.store.ActiveSessionId()
	}
	if _, ok := cs.store.Session(target); ok {
		res.SessionId = &target
	}
	return res, nil
}

func (cs *chatbotService) ToggleFile(ctx context.Context, id uuid.UUID) (*dto.ToggleFileResponse, error) {
	if _, ok := cs.store.File(id); !ok {
		return nil, store.ErrFileNotFound
	}
	return &dto.ToggleFileResponse{FileId: id, Selected: cs.store.ToggleFileSelection(id)}, nil
}

func (cs *chatbotService) DeleteFile(ctx context.Context, id uuid.UUID) error {
	if _, ok := cs.store.File(id); !ok {
		return store.ErrFileNotFound
	}
	cs.store.DeleteFile(id)
	return nil
}

func (cs *chatbotService) SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	res, err := cs.store.SendTurn(ctx, request.Chat)
	if err != nil {
		return nil, err
	}
	return cs.turnResponse(res), nil
}

func (cs *chatbotService) RegenerateChat(ctx context.Context) (*dto.SendChatResponse, error) {
	res, err := cs.store.RegenerateLastTurn(ctx)
	if err != nil {
		return nil, err
	}
	return cs.turnResponse(res), nil
}

func (cs *chatbotService) GetQuickActions(ctx context.Context) []dto.QuickActionResponse {
	res := make([]dto.QuickActionResponse, 0, len(constant.QuickActions))
	for _, a := range constant.QuickActions {
		res = append(res, cs.mapper.QuickActionToResponse(a))
	}
	return res
}

func (cs *chatbotService) RunQuickAction(ctx context.Context, key string) (*dto.SendChatResponse, error) {
	action, ok := constant.FindQuickAction(key)
	if !ok {
		return nil, &store.ValidationError{Field: "key", Reason: "unknown quick action " + key}
	}
	return cs.SendChat(ctx, &dto.SendChatRequest{Chat: action.Prompt})
}

func (cs *chatbotService) turnResponse(res *store.TurnResult) *dto.SendChatResponse {
	out := &dto.SendChatResponse{
		ChatSessionId: res.SessionId,
		Sent:          cs.mapper.MessageToResponse(res.Sent),
		Reply:         cs.mapper.MessageToResponse(res.Reply),
		Recorded:      res.Recorded,
	}

	var genErr *store.GenerationError
	if errors.As(res.Failure, &genErr) {
		out.Failed = true
		out.Error = genErr.Message
		out.Timeout = genErr.Timeout
	}
	return out
}
