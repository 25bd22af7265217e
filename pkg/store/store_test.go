package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/pkg/events"
	"docchat-be/pkg/ingest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type generateCall struct {
	Query     string
	Documents []string
}

type recordingGenerator struct {
	mu    sync.Mutex
	calls []generateCall
	reply string
	err   error
}

func (g *recordingGenerator) Generate(_ context.Context, query string, documents []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{Query: query, Documents: append([]string(nil), documents...)})
	return g.reply, g.err
}

func (g *recordingGenerator) Calls() []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generateCall(nil), g.calls...)
}

// blockingGenerator holds every call until release is closed or ctx ends.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	reply   string
}

func newBlockingGenerator(reply string) *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{}, 8), release: make(chan struct{}), reply: reply}
}

func (g *blockingGenerator) Generate(ctx context.Context, _ string, _ []string) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type generatorFunc func(ctx context.Context, query string, documents []string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, query string, documents []string) (string, error) {
	return f(ctx, query, documents)
}

// textIngester treats every upload as plain text. Names listed in fail are rejected.
type textIngester struct {
	fail map[string]error
}

func (i *textIngester) Ingest(_ context.Context, raw entity.RawFile) (*ingest.Result, error) {
	if err, ok := i.fail[raw.Name]; ok {
		return nil, err
	}
	return &ingest.Result{
		Record: entity.FileRecord{
			Id:         uuid.New(),
			Name:       raw.Name,
			MediaType:  "text/plain",
			SizeBytes:  int64(len(raw.Data)),
			UploadedAt: fixedNow,
			Processed:  true,
		},
		Text: string(raw.Data),
	}, nil
}

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, raw entity.RawFile) (*ingest.Result, error) {
	args := m.Called(ctx, raw)
	res, _ := args.Get(0).(*ingest.Result)
	return res, args.Error(1)
}

func newTestStore(gen Generator, opts ...Option) (*SessionStore, *events.Recorder) {
	rec := events.NewRecorder(256)
	opts = append([]Option{WithPublisher(rec), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewSessionStore(gen, &textIngester{}, opts...), rec
}

func rawText(name, content string) entity.RawFile {
	return entity.RawFile{Name: name, MediaType: "text/plain", Data: []byte(content)}
}

func ingestTexts(t *testing.T, s *SessionStore, target uuid.UUID, files ...entity.RawFile) []entity.FileRecord {
	t.Helper()
	records, err := s.IngestFiles(context.Background(), files, target)
	require.NoError(t, err)
	require.Len(t, records, len(files))
	return records
}

func eventTypes(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.EventType())
	}
	return out
}

func roles(messages []entity.ChatMessage) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Role)
	}
	return out
}

func TestCreateSession(t *testing.T) {
	t.Run("without files uses a dated title", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})

		sess := s.CreateSession()

		assert.Equal(t, "New Chat (10/19/2026)", sess.Title)
		assert.Empty(t, sess.Files)
		assert.Empty(t, sess.Messages)
		assert.Equal(t, fixedNow, sess.CreatedAt)
		assert.Equal(t, sess.Id, s.ActiveSessionId())
		assert.Empty(t, s.SelectedFileIds())
	})

	t.Run("single file names the session after it", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		f := entity.FileRecord{Id: uuid.New(), Name: "quarterly.report.pdf"}

		sess := s.CreateSession(f)

		assert.Equal(t, "quarterly.report", sess.Title)
		assert.Equal(t, []uuid.UUID{f.Id}, s.SelectedFileIds())
		_, registered := s.File(f.Id)
		assert.True(t, registered)
	})

	t.Run("replaces the selection and dedupes files", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		a := entity.FileRecord{Id: uuid.New(), Name: "a.txt"}
		b := entity.FileRecord{Id: uuid.New(), Name: "b.txt"}
		s.CreateSession(a)

		sess := s.CreateSession(b, b, a)

		assert.Equal(t, []uuid.UUID{b.Id, a.Id}, sess.FileIds())
		assert.ElementsMatch(t, []uuid.UUID{a.Id, b.Id}, s.SelectedFileIds())
		assert.Equal(t, "New Chat (10/19/2026)", sess.Title)
		assert.Len(t, s.Sessions(), 2)
	})
}

func TestSnapshotsAreIndependent(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{})
	sess := s.CreateSession(entity.FileRecord{Id: uuid.New(), Name: "a.txt"})

	sess.Files[0].Name = "mutated"
	sess.Title = "mutated"

	stored, ok := s.Session(sess.Id)
	require.True(t, ok)
	assert.Equal(t, "a", stored.Title)
	assert.Equal(t, "a.txt", stored.Files[0].Name)
}

func TestSendTurn(t *testing.T) {
	t.Run("rejects blank messages", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		s.CreateSession()

		_, err := s.SendTurn(context.Background(), "   \n")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "message", verr.Field)
		sess, _ := s.ActiveSession()
		assert.Empty(t, sess.Messages)
	})

	t.Run("requires an active session", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		_, err := s.SendTurn(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrNoActiveSession)
	})

	t.Run("no selected content answers with the advisory", func(t *testing.T) {
		gen := &recordingGenerator{reply: "unused"}
		s, _ := newTestStore(gen)
		s.CreateSession()

		res, err := s.SendTurn(context.Background(), "What is this?")

		require.NoError(t, err)
		assert.Equal(t, constant.NoFileSelectedMessage, res.Reply.Content)
		assert.NoError(t, res.Failure)
		assert.True(t, res.Recorded)
		assert.Empty(t, gen.Calls())

		sess, _ := s.ActiveSession()
		assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
		assert.Equal(t, "What is this?", sess.Messages[0].Content)
	})

	t.Run("passes selected documents in session order", func(t *testing.T) {
		gen := &recordingGenerator{reply: "## Summary"}
		s, rec := newTestStore(gen)
		records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"), rawText("b.txt", "  "), rawText("c.txt", "gamma"))
		rec.Drain()

		res, err := s.SendTurn(context.Background(), "Summarize")

		require.NoError(t, err)
		assert.Equal(t, "## Summary", res.Reply.Content)
		assert.Equal(t, constant.ChatMessageRoleAssistant, res.Reply.Role)
		require.Len(t, gen.Calls(), 1)
		assert.Equal(t, generateCall{Query: "Summarize", Documents: []string{"alpha", "gamma"}}, gen.Calls()[0])

		sess, _ := s.ActiveSession()
		assert.Equal(t, records[0].Id, sess.Files[0].Id)
		assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
		assert.False(t, s.IsProcessing(sess.Id))
		assert.Equal(t,
			[]string{events.MessageAppended, events.TurnStarted, events.MessageAppended, events.TurnCompleted},
			eventTypes(rec.Drain()))
	})

	t.Run("unselected files are left out", func(t *testing.T) {
		gen := &recordingGenerator{reply: "ok"}
		s, _ := newTestStore(gen)
		records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"), rawText("b.txt", "beta"))
		assert.False(t, s.ToggleFileSelection(records[0].Id))

		_, err := s.SendTurn(context.Background(), "q")

		require.NoError(t, err)
		assert.Equal(t, []string{"beta"}, gen.Calls()[0].Documents)
	})
}

func TestSendTurnGenerationFailure(t *testing.T) {
	boom := errors.New("provider unavailable")
	s, rec := newTestStore(&recordingGenerator{err: boom})
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))
	rec.Drain()

	res, err := s.SendTurn(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, constant.GenerationErrorMessage, res.Reply.Content)
	var genErr *GenerationError
	require.ErrorAs(t, res.Failure, &genErr)
	assert.False(t, genErr.Timeout)
	assert.ErrorIs(t, res.Failure, boom)

	sess, _ := s.ActiveSession()
	assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
	assert.False(t, sess.Processing)

	evs := rec.Drain()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TurnFailed, last.EventType())
	assert.Equal(t, sess.Id.String(), last.Payload()["session_id"])
}

func TestSendTurnBlankReplyIsAFailure(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{reply: " \n "})
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	res, err := s.SendTurn(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, constant.GenerationErrorMessage, res.Reply.Content)
	assert.Error(t, res.Failure)
}

func TestSendTurnGeneratorPanic(t *testing.T) {
	gen := generatorFunc(func(context.Context, string, []string) (string, error) {
		panic("nil map")
	})
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	res, err := s.SendTurn(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, constant.GenerationErrorMessage, res.Reply.Content)
	assert.ErrorContains(t, res.Failure, "nil map")
	assert.False(t, s.IsProcessing(res.SessionId))
}

func TestSendTurnTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ string, _ []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s, _ := newTestStore(gen, WithTurnTimeout(20*time.Millisecond))
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	res, err := s.SendTurn(context.Background(), "q")

	require.NoError(t, err)
	var genErr *GenerationError
	require.ErrorAs(t, res.Failure, &genErr)
	assert.True(t, genErr.Timeout)
	assert.Equal(t, constant.GenerationErrorMessage, res.Reply.Content)

	// the store accepts turns again
	sess, _ := s.ActiveSession()
	assert.False(t, sess.Processing)
}

func TestStartTurnRecordsUserMessageImmediately(t *testing.T) {
	gen := newBlockingGenerator("done")
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	turn, err := s.StartTurn(context.Background(), "first")
	require.NoError(t, err)
	<-gen.started

	sess, _ := s.ActiveSession()
	assert.Equal(t, []string{"user"}, roles(sess.Messages))
	assert.Equal(t, turn.Sent.Id, sess.Messages[0].Id)
	assert.True(t, s.IsProcessing(sess.Id))

	select {
	case <-turn.Done():
		t.Fatal("turn finished before the generator was released")
	default:
	}

	close(gen.release)
	res, err := turn.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res.Reply.Content)
}

func TestConcurrentTurnIsRejected(t *testing.T) {
	gen := newBlockingGenerator("done")
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	turn, err := s.StartTurn(context.Background(), "first")
	require.NoError(t, err)

	_, err = s.SendTurn(context.Background(), "second")
	var busy *TurnInProgressError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, turn.SessionId, busy.SessionId)

	_, err = s.RegenerateLastTurn(context.Background())
	assert.ErrorAs(t, err, &busy)

	close(gen.release)
	_, err = turn.Wait(context.Background())
	require.NoError(t, err)

	sess, _ := s.ActiveSession()
	assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
}

func TestTurnsOnDifferentSessionsRunTogether(t *testing.T) {
	gen := newBlockingGenerator("done")
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))
	first, err := s.StartTurn(context.Background(), "one")
	require.NoError(t, err)

	second := s.CreateSession(mustFile(t, s, "a.txt"))
	turn2, err := s.StartTurn(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, second.Id, turn2.SessionId)

	close(gen.release)
	for _, turn := range []*Turn{first, turn2} {
		res, err := turn.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Recorded)
	}
}

func mustFile(t *testing.T, s *SessionStore, name string) entity.FileRecord {
	t.Helper()
	for _, f := range s.Files() {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("file %s not registered", name)
	return entity.FileRecord{}
}

func TestTurnSurvivesCallerCancellation(t *testing.T) {
	gen := newBlockingGenerator("late reply")
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	turn, err := s.StartTurn(ctx, "q")
	require.NoError(t, err)
	<-gen.started
	cancel()

	_, err = turn.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(gen.release)
	res, err := turn.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late reply", res.Reply.Content)
	assert.NoError(t, res.Failure)
}

func TestSessionDeletedMidTurn(t *testing.T) {
	gen := newBlockingGenerator("orphan")
	s, _ := newTestStore(gen)
	ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	turn, err := s.StartTurn(context.Background(), "q")
	require.NoError(t, err)
	<-gen.started
	s.DeleteSession(turn.SessionId)

	close(gen.release)
	res, err := turn.Wait(context.Background())

	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Equal(t, "orphan", res.Reply.Content)
	assert.Empty(t, s.Sessions())
	assert.Equal(t, uuid.Nil, s.ActiveSessionId())
}

func TestFileDeletedMidTurn(t *testing.T) {
	gen := newBlockingGenerator("still answered")
	s, _ := newTestStore(gen)
	records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"))

	turn, err := s.StartTurn(context.Background(), "q")
	require.NoError(t, err)
	<-gen.started
	s.DeleteFile(records[0].Id)

	close(gen.release)
	res, err := turn.Wait(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Recorded)
	sess, _ := s.ActiveSession()
	assert.Empty(t, sess.Files)
	assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
	assert.Equal(t, "still answered", sess.Messages[1].Content)
}

func TestRegenerateLastTurn(t *testing.T) {
	t.Run("needs a user message", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{reply: "x"})
		s.CreateSession()

		_, err := s.RegenerateLastTurn(context.Background())
		assert.ErrorIs(t, err, ErrNoRegeneratableTurn)
	})

	t.Run("needs an active session", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{reply: "x"})
		_, err := s.RegenerateLastTurn(context.Background())
		assert.ErrorIs(t, err, ErrNoActiveSession)
	})

	t.Run("replaces the trailing reply using every session file", func(t *testing.T) {
		gen := &recordingGenerator{reply: "first"}
		s, rec := newTestStore(gen)
		records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "alpha"), rawText("b.txt", "beta"))
		_, err := s.SendTurn(context.Background(), "Explain")
		require.NoError(t, err)

		s.ToggleFileSelection(records[1].Id)
		gen.mu.Lock()
		gen.reply = "second"
		gen.mu.Unlock()
		rec.Drain()

		res, err := s.RegenerateLastTurn(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "second", res.Reply.Content)
		assert.Equal(t, "Explain", res.Sent.Content)

		calls := gen.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, generateCall{Query: "Explain", Documents: []string{"alpha", "beta"}}, calls[1])

		sess, _ := s.ActiveSession()
		require.Len(t, sess.Messages, 2)
		assert.Equal(t, "second", sess.Messages[1].Content)
		assert.Equal(t,
			[]string{events.MessageRemoved, events.TurnStarted, events.MessageAppended, events.TurnCompleted},
			eventTypes(rec.Drain()))
	})

	t.Run("does not remove a trailing user message", func(t *testing.T) {
		gen := &recordingGenerator{reply: "reply"}
		s, _ := newTestStore(gen)
		f := entity.FileRecord{Id: uuid.New(), Name: "a.txt"}
		imported, err := s.ImportSession(entity.ChatSession{
			Title:    "Imported",
			Files:    []entity.FileRecord{f},
			Messages: []entity.ChatMessage{{Id: uuid.New(), Role: constant.ChatMessageRoleUser, Content: "pending"}},
		}, map[uuid.UUID]string{f.Id: "alpha"})
		require.NoError(t, err)

		res, err := s.RegenerateLastTurn(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "reply", res.Reply.Content)
		assert.Equal(t, []generateCall{{Query: "pending", Documents: []string{"alpha"}}}, gen.Calls())
		sess, _ := s.Session(imported.Id)
		assert.Equal(t, []string{"user", "assistant"}, roles(sess.Messages))
	})

	t.Run("no content falls back to the advisory", func(t *testing.T) {
		gen := &recordingGenerator{reply: "x"}
		s, _ := newTestStore(gen)
		s.CreateSession()
		_, err := s.SendTurn(context.Background(), "hi")
		require.NoError(t, err)

		res, err := s.RegenerateLastTurn(context.Background())

		require.NoError(t, err)
		assert.Equal(t, constant.NoFileSelectedMessage, res.Reply.Content)
		assert.Empty(t, gen.Calls())
		sess, _ := s.ActiveSession()
		assert.Len(t, sess.Messages, 2)
	})
}

func TestIngestFiles(t *testing.T) {
	t.Run("creates a session when none is active", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})

		records := ingestTexts(t, s, uuid.Nil, rawText("notes.txt", "n"))

		sess, ok := s.ActiveSession()
		require.True(t, ok)
		assert.Equal(t, "notes", sess.Title)
		assert.Equal(t, []uuid.UUID{records[0].Id}, sess.FileIds())
		assert.Equal(t, []uuid.UUID{records[0].Id}, s.SelectedFileIds())
		text, ok := s.FileContent(records[0].Id)
		assert.True(t, ok)
		assert.Equal(t, "n", text)
	})

	t.Run("appends to the active session and unions the selection", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		first := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "a"), rawText("b.txt", "b"))
		s.ToggleFileSelection(first[1].Id)

		more := ingestTexts(t, s, uuid.Nil, rawText("c.txt", "c"))

		assert.Len(t, s.Sessions(), 1)
		sess, _ := s.ActiveSession()
		assert.Equal(t, []uuid.UUID{first[0].Id, first[1].Id, more[0].Id}, sess.FileIds())
		assert.Equal(t, []uuid.UUID{first[0].Id, more[0].Id}, s.SelectedFileIds())
	})

	t.Run("targets a specific session", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		target := s.CreateSession()
		s.CreateSession()

		records := ingestTexts(t, s, target.Id, rawText("a.txt", "a"))

		got, _ := s.Session(target.Id)
		assert.Equal(t, []uuid.UUID{records[0].Id}, got.FileIds())
		active, _ := s.ActiveSession()
		assert.Empty(t, active.Files)
	})

	t.Run("unknown target", func(t *testing.T) {
		s, _ := newTestStore(&recordingGenerator{})
		_, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("a.txt", "a")}, uuid.New())
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.Empty(t, s.Files())
	})

	t.Run("partial failure keeps the successes", func(t *testing.T) {
		bad := &ingest.UnsupportedFormatError{Name: "x.exe", Extension: ".exe"}
		ing := &mockIngester{}
		ok := &ingest.Result{Record: entity.FileRecord{Id: uuid.New(), Name: "a.txt", Processed: true}, Text: "a"}
		ing.On("Ingest", mock.Anything, mock.MatchedBy(func(r entity.RawFile) bool { return r.Name == "a.txt" })).Return(ok, nil).Once()
		ing.On("Ingest", mock.Anything, mock.MatchedBy(func(r entity.RawFile) bool { return r.Name == "x.exe" })).Return(nil, bad).Once()

		s := NewSessionStore(&recordingGenerator{}, ing)
		records, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("x.exe", "?"), rawText("a.txt", "a")}, uuid.Nil)

		var ingErr *IngestionError
		require.ErrorAs(t, err, &ingErr)
		require.Len(t, ingErr.Failed, 1)
		assert.Equal(t, "x.exe", ingErr.Failed[0].Name)
		assert.ErrorAs(t, err, &bad)
		assert.Equal(t, []entity.FileRecord{ok.Record}, records)

		sess, _ := s.ActiveSession()
		assert.Equal(t, []uuid.UUID{ok.Record.Id}, sess.FileIds())
		ing.AssertExpectations(t)
	})

	t.Run("all failed changes nothing", func(t *testing.T) {
		boom := errors.New("disk error")
		s := NewSessionStore(&recordingGenerator{}, &textIngester{fail: map[string]error{"a.txt": boom}})

		records, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("a.txt", "a")}, uuid.Nil)

		assert.Nil(t, records)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, s.Sessions())
		assert.Empty(t, s.Files())
	})
}

// deletingIngester deletes the first file of a batch while the second one is
// being ingested.
type deletingIngester struct {
	textIngester
	store *SessionStore
	first uuid.UUID
}

func (i *deletingIngester) Ingest(ctx context.Context, raw entity.RawFile) (*ingest.Result, error) {
	if i.first != uuid.Nil {
		i.store.DeleteFile(i.first)
	}
	res, err := i.textIngester.Ingest(ctx, raw)
	if err == nil && i.first == uuid.Nil {
		i.first = res.Record.Id
	}
	return res, err
}

func TestIngestFilesFileDeletedMidBatch(t *testing.T) {
	assertGone := func(t *testing.T, s *SessionStore, id uuid.UUID) {
		t.Helper()
		_, inRegistry := s.File(id)
		_, hasContent := s.FileContent(id)
		assert.False(t, inRegistry)
		assert.False(t, hasContent)
		assert.False(t, s.IsSelected(id))
		for _, sess := range s.Sessions() {
			assert.NotContains(t, sess.FileIds(), id, "session %q", sess.Title)
		}
	}

	t.Run("active session", func(t *testing.T) {
		ing := &deletingIngester{}
		s := NewSessionStore(&recordingGenerator{}, ing, WithClock(func() time.Time { return fixedNow }))
		ing.store = s
		active := s.CreateSession()

		records, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("a.txt", "a"), rawText("b.txt", "b")}, uuid.Nil)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "b.txt", records[0].Name)
		assertGone(t, s, ing.first)

		sess, ok := s.Session(active.Id)
		require.True(t, ok)
		assert.Equal(t, []uuid.UUID{records[0].Id}, sess.FileIds())
		assert.Equal(t, []uuid.UUID{records[0].Id}, s.SelectedFileIds())
	})

	t.Run("no active session", func(t *testing.T) {
		ing := &deletingIngester{}
		s := NewSessionStore(&recordingGenerator{}, ing, WithClock(func() time.Time { return fixedNow }))
		ing.store = s

		records, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("a.txt", "a"), rawText("b.txt", "b")}, uuid.Nil)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assertGone(t, s, ing.first)
		assert.Len(t, s.Files(), 1)

		sess, ok := s.ActiveSession()
		require.True(t, ok)
		assert.Equal(t, "b", sess.Title)
		assert.Equal(t, []uuid.UUID{records[0].Id}, sess.FileIds())
	})

	t.Run("every success deleted", func(t *testing.T) {
		boom := errors.New("disk error")
		ing := &deletingIngester{textIngester: textIngester{fail: map[string]error{"b.txt": boom}}}
		s := NewSessionStore(&recordingGenerator{}, ing)
		ing.store = s

		records, err := s.IngestFiles(context.Background(), []entity.RawFile{rawText("a.txt", "a"), rawText("b.txt", "b")}, uuid.Nil)

		assert.Empty(t, records)
		var ingestErr *IngestionError
		require.ErrorAs(t, err, &ingestErr)
		assert.Empty(t, ingestErr.Succeeded)
		assert.Empty(t, s.Sessions())
		assert.Empty(t, s.Files())
	})
}

func TestDeleteSession(t *testing.T) {
	s, rec := newTestStore(&recordingGenerator{})
	a := entity.FileRecord{Id: uuid.New(), Name: "a.txt"}
	b := entity.FileRecord{Id: uuid.New(), Name: "b.txt"}
	first := s.CreateSession(a)
	second := s.CreateSession(b)
	third := s.CreateSession()
	require.NoError(t, s.ActivateSession(second.Id))
	rec.Drain()

	// deleting an inactive session keeps the active one and the selection
	s.DeleteSession(third.Id)
	assert.Equal(t, second.Id, s.ActiveSessionId())
	assert.Empty(t, s.SelectedFileIds())

	s.DeleteSession(second.Id)
	assert.Equal(t, first.Id, s.ActiveSessionId())
	assert.Equal(t, []uuid.UUID{a.Id}, s.SelectedFileIds())
	_, ok := s.File(b.Id)
	assert.True(t, ok, "files outlive their sessions")

	s.DeleteSession(uuid.New())
	s.DeleteSession(first.Id)
	assert.Equal(t, uuid.Nil, s.ActiveSessionId())
	assert.Empty(t, s.SelectedFileIds())
	_, ok = s.ActiveSession()
	assert.False(t, ok)

	assert.Equal(t, []string{
		events.SessionDeleted,
		events.SessionDeleted, events.SelectionChanged,
		events.SessionDeleted, events.SelectionChanged,
	}, eventTypes(rec.Drain()))
}

func TestRenameSession(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{})
	sess := s.CreateSession()

	require.NoError(t, s.RenameSession(sess.Id, "  Budget review  "))
	got, _ := s.Session(sess.Id)
	assert.Equal(t, "Budget review", got.Title)

	var verr *ValidationError
	assert.ErrorAs(t, s.RenameSession(sess.Id, " "), &verr)
	assert.NoError(t, s.RenameSession(uuid.New(), "ignored"))
}

func TestActivateSessionKeepsSelection(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{})
	a := entity.FileRecord{Id: uuid.New(), Name: "a.txt"}
	first := s.CreateSession()
	s.CreateSession(a)

	require.NoError(t, s.ActivateSession(first.Id))

	assert.Equal(t, first.Id, s.ActiveSessionId())
	assert.Equal(t, []uuid.UUID{a.Id}, s.SelectedFileIds())
	assert.ErrorIs(t, s.ActivateSession(uuid.New()), ErrSessionNotFound)
}

func TestToggleFileSelection(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{})
	records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "a"))
	id := records[0].Id

	assert.False(t, s.ToggleFileSelection(id))
	assert.False(t, s.IsSelected(id))
	assert.True(t, s.ToggleFileSelection(id))
	assert.True(t, s.IsSelected(id))

	unknown := uuid.New()
	assert.False(t, s.ToggleFileSelection(unknown))
	assert.False(t, s.IsSelected(unknown))
}

func TestDeleteFileCascades(t *testing.T) {
	s, rec := newTestStore(&recordingGenerator{})
	records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "a"), rawText("b.txt", "b"))
	other := s.CreateSession(records[0])
	rec.Drain()

	s.DeleteFile(records[0].Id)
	s.DeleteFile(records[0].Id)

	_, ok := s.File(records[0].Id)
	assert.False(t, ok)
	_, ok = s.FileContent(records[0].Id)
	assert.False(t, ok)
	assert.False(t, s.IsSelected(records[0].Id))
	for _, sess := range s.Sessions() {
		assert.NotContains(t, sess.FileIds(), records[0].Id)
	}
	got, _ := s.Session(other.Id)
	assert.Empty(t, got.Files)
	assert.Equal(t, []entity.FileRecord{records[1]}, s.Files())
	assert.Equal(t, []string{events.FileDeleted}, eventTypes(rec.Drain()))
}

func TestImportSession(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{reply: "answer"})
	f := entity.FileRecord{Id: uuid.New(), Name: "paper.pdf", Processed: true}

	sess, err := s.ImportSession(entity.ChatSession{Title: "Research", Files: []entity.FileRecord{f}}, map[uuid.UUID]string{f.Id: "paper text"})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.Id)
	assert.Equal(t, sess.Id, s.ActiveSessionId())
	assert.Equal(t, []uuid.UUID{f.Id}, s.SelectedFileIds())

	_, err = s.ImportSession(sess, nil)
	assert.Error(t, err)

	// a second import does not steal the active session
	second, err := s.ImportSession(entity.ChatSession{Title: "Other"}, nil)
	require.NoError(t, err)
	assert.Equal(t, sess.Id, s.ActiveSessionId())
	assert.NotEqual(t, sess.Id, second.Id)

	res, err := s.SendTurn(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Reply.Content)
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{})
	ingestTexts(t, s, uuid.Nil, rawText("Budget-2024.txt", "b"))
	ingestTexts(t, s, uuid.Nil, rawText("minutes.txt", "m"))
	second := s.CreateSession()
	require.NoError(t, s.RenameSession(second.Id, "Quarterly BUDGET"))

	assert.Len(t, s.SearchSessions("budget"), 2)
	assert.Len(t, s.SearchSessions(""), 2)
	assert.Empty(t, s.SearchSessions("nothing"))

	files := s.SearchFiles("BUDGET")
	require.Len(t, files, 1)
	assert.Equal(t, "Budget-2024.txt", files[0].Name)
	assert.Len(t, s.SearchFiles(" "), 2)
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(&recordingGenerator{reply: "ok"})
	records := ingestTexts(t, s, uuid.Nil, rawText("a.txt", "a"), rawText("b.txt", "b"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				switch (i + j) % 5 {
				case 0:
					s.ToggleFileSelection(records[j%2].Id)
				case 1:
					s.CreateSession(records...)
				case 2:
					_, _ = s.SendTurn(context.Background(), fmt.Sprintf("q%d-%d", i, j))
				case 3:
					_ = s.Sessions()
					_ = s.SelectedFileIds()
				case 4:
					_, _ = s.IngestFiles(context.Background(), []entity.RawFile{rawText("c.txt", "c")}, uuid.Nil)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, sess := range s.Sessions() {
		assert.False(t, sess.Processing)
		for _, m := range sess.Messages {
			assert.NotEmpty(t, m.Content)
		}
	}
	for _, id := range s.SelectedFileIds() {
		_, ok := s.File(id)
		assert.True(t, ok)
	}
}
