package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/pkg/events"
	"docchat-be/pkg/ingest"

	"github.com/google/uuid"
)

const DefaultTurnTimeout = 60 * time.Second

// Generator produces an assistant reply from a query and document texts.
// It is never called with an empty document list.
type Generator interface {
	Generate(ctx context.Context, query string, documents []string) (string, error)
}

// Ingester converts an upload into a file record and its extracted text.
type Ingester interface {
	Ingest(ctx context.Context, raw entity.RawFile) (*ingest.Result, error)
}

// SessionStore owns chat sessions, the file registry, extracted file text and
// the file selection. A single mutex guards all of it and is never held
// across a Generator or Ingester call.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*entity.ChatSession
	order    []uuid.UUID
	activeId uuid.UUID // uuid.Nil when there is no active session

	files     map[uuid.UUID]entity.FileRecord
	fileOrder []uuid.UUID
	contents  *memory.FileContentRepository
	selected  map[uuid.UUID]struct{}

	generator   Generator
	ingester    Ingester
	publisher   events.Publisher
	logger      logger.ILogger
	turnTimeout time.Duration
	now         func() time.Time
}

type Option func(*SessionStore)

func WithPublisher(p events.Publisher) Option {
	return func(s *SessionStore) {
		s.publisher = p
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(s *SessionStore) {
		s.logger = l
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(s *SessionStore) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

func WithContentRepository(repo *memory.FileContentRepository) Option {
	return func(s *SessionStore) {
		s.contents = repo
	}
}

func NewSessionStore(generator Generator, ingester Ingester, opts ...Option) *SessionStore {
	s := &SessionStore{
		sessions:    make(map[uuid.UUID]*entity.ChatSession),
		files:       make(map[uuid.UUID]entity.FileRecord),
		selected:    make(map[uuid.UUID]struct{}),
		generator:   generator,
		ingester:    ingester,
		logger:      logger.NewNop(),
		turnTimeout: DefaultTurnTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.contents == nil {
		s.contents = memory.NewFileContentRepository()
	}
	return s
}

// CreateSession registers a new session, makes it active and replaces the
// selection with the ids of initialFiles.
func (s *SessionStore) CreateSession(initialFiles ...entity.FileRecord) entity.ChatSession {
	s.mu.Lock()
	sess := s.createSessionLocked(initialFiles)
	snapshot := sess.Clone()
	s.mu.Unlock()

	s.logger.Info("SessionStore", "Session created", map[string]interface{}{
		"session_id": snapshot.Id.String(),
		"title":      snapshot.Title,
		"files":      len(snapshot.Files),
	})
	s.emit(context.Background(),
		events.New(events.SessionCreated, sessionPayload(snapshot)),
		events.New(events.SelectionChanged, map[string]interface{}{"selected_file_ids": idStrings(snapshot.FileIds())}),
	)
	return snapshot
}

func (s *SessionStore) createSessionLocked(initialFiles []entity.FileRecord) *entity.ChatSession {
	now := s.now()
	files := dedupeFiles(initialFiles)
	for _, f := range files {
		s.registerFileLocked(f)
	}

	sess := &entity.ChatSession{
		Id:        uuid.New(),
		Title:     sessionTitle(files, now),
		Files:     files,
		Messages:  []entity.ChatMessage{},
		CreatedAt: now,
	}
	s.sessions[sess.Id] = sess
	s.order = append(s.order, sess.Id)
	s.activeId = sess.Id
	s.replaceSelectionLocked(sess.FileIds())
	return sess
}

// DeleteSession removes a session. Deleting the active session falls back to
// the first remaining session and resets the selection to its files.
// Unknown ids are ignored.
func (s *SessionStore) DeleteSession(id uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, id)
	s.order = removeId(s.order, id)

	wasActive := s.activeId == id
	if wasActive {
		s.activeId = uuid.Nil
		s.replaceSelectionLocked(nil)
		if len(s.order) > 0 {
			next := s.sessions[s.order[0]]
			s.activeId = next.Id
			s.replaceSelectionLocked(next.FileIds())
		}
	}
	activeId := s.activeId
	selection := s.selectedIdsLocked()
	s.mu.Unlock()

	s.logger.Info("SessionStore", "Session deleted", map[string]interface{}{
		"session_id": id.String(),
		"was_active": wasActive,
	})

	evs := []events.Event{events.New(events.SessionDeleted, map[string]interface{}{
		"session_id":        id.String(),
		"active_session_id": nilableId(activeId),
	})}
	if wasActive {
		evs = append(evs, events.New(events.SelectionChanged, map[string]interface{}{"selected_file_ids": idStrings(selection)}))
	}
	s.emit(context.Background(), evs...)
}

// RenameSession replaces a session title. Blank titles are rejected; unknown ids are ignored.
func (s *SessionStore) RenameSession(id uuid.UUID, newTitle string) error {
	title := strings.TrimSpace(newTitle)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.Title = title
	}
	s.mu.Unlock()

	if ok {
		s.emit(context.Background(), events.New(events.SessionRenamed, map[string]interface{}{
			"session_id": id.String(),
			"title":      title,
		}))
	}
	return nil
}

// ActivateSession switches the active session. The selection is left as is.
func (s *SessionStore) ActivateSession(id uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.activeId = id
	s.mu.Unlock()

	s.emit(context.Background(), events.New(events.SessionActivated, map[string]interface{}{"session_id": id.String()}))
	return nil
}

// ImportSession loads a prepared session together with the text of its files.
// When nothing is active yet the imported session becomes active with all of
// its files selected.
func (s *SessionStore) ImportSession(session entity.ChatSession, contents map[uuid.UUID]string) (entity.ChatSession, error) {
	if session.Id == uuid.Nil {
		session.Id = uuid.New()
	}
	if strings.TrimSpace(session.Title) == "" {
		session.Title = sessionTitle(session.Files, s.now())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	session.Files = dedupeFiles(session.Files)
	session.Processing = false
	imported := session.Clone()

	s.mu.Lock()
	if _, exists := s.sessions[imported.Id]; exists {
		s.mu.Unlock()
		return entity.ChatSession{}, fmt.Errorf("import session %s: already exists", imported.Id)
	}
	for _, f := range imported.Files {
		s.registerFileLocked(f)
		if text, ok := contents[f.Id]; ok {
			s.contents.Save(f.Id, text)
		}
	}
	s.sessions[imported.Id] = &imported
	s.order = append(s.order, imported.Id)
	if s.activeId == uuid.Nil {
		s.activeId = imported.Id
		s.replaceSelectionLocked(imported.FileIds())
	}
	snapshot := imported.Clone()
	s.mu.Unlock()

	s.emit(context.Background(), events.New(events.SessionCreated, sessionPayload(snapshot)))
	return snapshot, nil
}

// IngestFiles runs every upload through the Ingester and registers the ones
// that succeed. The batch is attached to targetSessionId, or to the active
// session, or to a new session when neither exists. Failures do not roll back
// earlier files; they are reported through *IngestionError next to the
// records that made it in.
func (s *SessionStore) IngestFiles(ctx context.Context, rawFiles []entity.RawFile, targetSessionId uuid.UUID) ([]entity.FileRecord, error) {
	if targetSessionId != uuid.Nil {
		s.mu.RLock()
		_, ok := s.sessions[targetSessionId]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrSessionNotFound
		}
	}

	var succeeded []entity.FileRecord
	var failed []FileFailure
	for _, raw := range rawFiles {
		res, err := s.ingester.Ingest(ctx, raw)
		if err != nil {
			s.logger.Warn("SessionStore", "File ingestion failed", map[string]interface{}{
				"name":  raw.Name,
				"error": err.Error(),
			})
			failed = append(failed, FileFailure{Name: raw.Name, Err: err})
			continue
		}

		s.mu.Lock()
		s.registerFileLocked(res.Record)
		s.contents.Save(res.Record.Id, res.Text)
		s.mu.Unlock()

		succeeded = append(succeeded, res.Record)
	}

	s.mu.Lock()
	// files deleted while the rest of the batch was ingesting stay deleted
	succeeded = s.registeredLocked(succeeded)

	var ingestErr error
	if len(failed) > 0 {
		ingestErr = &IngestionError{Succeeded: succeeded, Failed: failed}
	}
	if len(succeeded) == 0 {
		s.mu.Unlock()
		return nil, ingestErr
	}

	var attachedTo uuid.UUID
	var created *entity.ChatSession
	if targetSessionId == uuid.Nil && s.activeId == uuid.Nil {
		created = s.createSessionLocked(succeeded)
		attachedTo = created.Id
	} else {
		attachedTo = targetSessionId
		if attachedTo == uuid.Nil {
			attachedTo = s.activeId
		}
		if sess, ok := s.sessions[attachedTo]; ok {
			sess.Files = appendMissingFiles(sess.Files, succeeded)
			for _, f := range succeeded {
				s.selected[f.Id] = struct{}{}
			}
		} else {
			// deleted while the batch was being ingested; files stay registered
			attachedTo = uuid.Nil
		}
	}
	selection := s.selectedIdsLocked()
	cached := s.contents.Count()
	var createdSnapshot entity.ChatSession
	if created != nil {
		createdSnapshot = created.Clone()
	}
	s.mu.Unlock()

	s.logger.Info("SessionStore", "Files ingested", map[string]interface{}{
		"succeeded":    len(succeeded),
		"failed":       len(failed),
		"session_id":   nilableId(attachedTo),
		"cached_files": cached,
	})

	var evs []events.Event
	if created != nil {
		evs = append(evs, events.New(events.SessionCreated, sessionPayload(createdSnapshot)))
	}
	evs = append(evs,
		events.New(events.FilesIngested, map[string]interface{}{
			"session_id": nilableId(attachedTo),
			"file_ids":   idStrings(recordIds(succeeded)),
			"failed":     len(failed),
		}),
		events.New(events.SelectionChanged, map[string]interface{}{"selected_file_ids": idStrings(selection)}),
	)
	s.emit(ctx, evs...)

	return succeeded, ingestErr
}

// ToggleFileSelection flips a file's membership in the selection and reports
// whether it is now selected. Unregistered ids are ignored.
func (s *SessionStore) ToggleFileSelection(fileId uuid.UUID) bool {
	s.mu.Lock()
	if _, ok := s.files[fileId]; !ok {
		s.mu.Unlock()
		return false
	}
	_, wasSelected := s.selected[fileId]
	if wasSelected {
		delete(s.selected, fileId)
	} else {
		s.selected[fileId] = struct{}{}
	}
	selection := s.selectedIdsLocked()
	s.mu.Unlock()

	s.emit(context.Background(), events.New(events.SelectionChanged, map[string]interface{}{
		"file_id":           fileId.String(),
		"selected":          !wasSelected,
		"selected_file_ids": idStrings(selection),
	}))
	return !wasSelected
}

// DeleteFile removes a file from the registry, the content cache, the
// selection and every session. Idempotent.
func (s *SessionStore) DeleteFile(fileId uuid.UUID) {
	s.mu.Lock()
	_, known := s.files[fileId]
	delete(s.files, fileId)
	s.fileOrder = removeId(s.fileOrder, fileId)
	s.contents.Delete(fileId)
	delete(s.selected, fileId)
	for _, sess := range s.sessions {
		sess.Files = removeFile(sess.Files, fileId)
	}
	s.mu.Unlock()

	if known {
		s.logger.Info("SessionStore", "File deleted", map[string]interface{}{"file_id": fileId.String()})
		s.emit(context.Background(), events.New(events.FileDeleted, map[string]interface{}{"file_id": fileId.String()}))
	}
}

func (s *SessionStore) registerFileLocked(f entity.FileRecord) {
	if _, ok := s.files[f.Id]; !ok {
		s.fileOrder = append(s.fileOrder, f.Id)
	}
	s.files[f.Id] = f
}

// registeredLocked keeps the records whose id is still in the registry.
func (s *SessionStore) registeredLocked(records []entity.FileRecord) []entity.FileRecord {
	out := make([]entity.FileRecord, 0, len(records))
	for _, r := range records {
		if _, ok := s.files[r.Id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *SessionStore) replaceSelectionLocked(ids []uuid.UUID) {
	s.selected = make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.files[id]; ok {
			s.selected[id] = struct{}{}
		}
	}
}

// selectedIdsLocked returns the selection in registry order.
func (s *SessionStore) selectedIdsLocked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.selected))
	for _, id := range s.fileOrder {
		if _, ok := s.selected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *SessionStore) emit(ctx context.Context, evs ...events.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("SessionStore", "Failed to publish event", map[string]interface{}{
				"event": e.EventType(),
				"error": err.Error(),
			})
		}
	}
}

// sessionTitle names a session after its only file, or after the date.
func sessionTitle(files []entity.FileRecord, now time.Time) string {
	if len(files) == 1 {
		name := filepath.Base(files[0].Name)
		if base := strings.TrimSuffix(name, filepath.Ext(name)); base != "" {
			return base
		}
	}
	return fmt.Sprintf(constant.NewSessionTitleFormat, now.Format(constant.SessionTitleDateLayout))
}

func dedupeFiles(files []entity.FileRecord) []entity.FileRecord {
	return appendMissingFiles(make([]entity.FileRecord, 0, len(files)), files)
}

func appendMissingFiles(dst, add []entity.FileRecord) []entity.FileRecord {
	seen := make(map[uuid.UUID]struct{}, len(dst))
	for _, f := range dst {
		seen[f.Id] = struct{}{}
	}
	for _, f := range add {
		if _, ok := seen[f.Id]; ok {
			continue
		}
		seen[f.Id] = struct{}{}
		dst = append(dst, f)
	}
	return dst
}

func removeFile(files []entity.FileRecord, id uuid.UUID) []entity.FileRecord {
	out := files[:0]
	for _, f := range files {
		if f.Id != id {
			out = append(out, f)
		}
	}
	return out
}

func removeId(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func recordIds(files []entity.FileRecord) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.Id)
	}
	return ids
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func nilableId(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func sessionPayload(sess entity.ChatSession) map[string]interface{} {
	return map[string]interface{}{
		"session_id": sess.Id.String(),
		"title":      sess.Title,
		"file_ids":   idStrings(sess.FileIds()),
		"created_at": sess.CreatedAt,
	}
}
