package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"docchat-be/internal/bootstrap"
	"docchat-be/internal/config"
	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/internal/mapper"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/seed"
	"docchat-be/pkg/ingest"
	"docchat-be/pkg/llm/factory"
	"docchat-be/pkg/rag/response"
	"docchat-be/pkg/store"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

const helpText = `Commands:
  /new                  start an empty session
  /upload <path>...     upload files into the active session
  /files                list uploaded files
  /toggle <file-id>     select or deselect a file
  /sessions             list sessions
  /use <session-id>     switch the active session
  /rename <title>       rename the active session
  /delete <session-id>  delete a session
  /rm <file-id>         delete a file everywhere
  /regen                regenerate the last reply
  /quick <key>          run a quick action (summarize, key-points, explain)
  /quit                 exit
Anything else is sent as a message. Ids may be shortened to a prefix.`

type repl struct {
	store *store.SessionStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		color.Red("Unable to load config: %v", err)
		os.Exit(1)
	}

	// keep stdout for the conversation
	log := logger.NewIsolatedLogger("logs/chat.log")
	defer func() { _ = log.Sync() }()

	provider, err := factory.NewLLMProvider(bootstrap.ProviderSettings(cfg))
	if err != nil {
		color.Red("Unable to init LLM provider: %v", err)
		os.Exit(1)
	}

	s := store.NewSessionStore(
		response.NewGenerator(provider, log, response.WithSampling(cfg.Ai.Temperature, cfg.Ai.MaxTokens)),
		ingest.NewIngester(cfg.Chat.MaxUploadBytes, log),
		store.WithLogger(log),
		store.WithTurnTimeout(cfg.Chat.TurnTimeout),
	)
	if cfg.App.SeedDemo {
		if _, err := seed.SeedDemoSessions(s, time.Now()); err != nil {
			color.Red("Seed failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &repl{store: s}
	color.Cyan("docchat (%s / %s). Type /help for commands.", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	r.run(ctx, bufio.NewScanner(os.Stdin))
}

func (r *repl) run(ctx context.Context, in *bufio.Scanner) {
	for {
		r.prompt()
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			color.Red("Error: %v", err)
		}
		if quit || ctx.Err() != nil {
			return
		}
	}
}

func (r *repl) prompt() {
	title := "no session"
	if sess, ok := r.store.ActiveSession(); ok {
		title = sess.Title
	}
	color.New(color.FgHiBlack).Printf("[%s] ", title)
	fmt.Print("> ")
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println(helpText)
	case "/new":
		sess := r.store.CreateSession()
		color.Green("Created %q", sess.Title)
	case "/upload":
		return false, r.upload(ctx, strings.Fields(arg))
	case "/files":
		r.listFiles()
	case "/toggle":
		id, err := r.resolveFile(arg)
		if err != nil {
			return false, err
		}
		if r.store.ToggleFileSelection(id) {
			color.Green("Selected")
		} else {
			color.Yellow("Deselected")
		}
	case "/sessions":
		r.listSessions()
	case "/use":
		id, err := r.resolveSession(arg)
		if err != nil {
			return false, err
		}
		return false, r.store.ActivateSession(id)
	case "/rename":
		id := r.store.ActiveSessionId()
		if id == uuid.Nil {
			return false, store.ErrNoActiveSession
		}
		return false, r.store.RenameSession(id, arg)
	case "/delete":
		id, err := r.resolveSession(arg)
		if err != nil {
			return false, err
		}
		r.store.DeleteSession(id)
		color.Yellow("Session deleted")
	case "/rm":
		id, err := r.resolveFile(arg)
		if err != nil {
			return false, err
		}
		r.store.DeleteFile(id)
		color.Yellow("File deleted")
	case "/regen":
		res, err := r.store.RegenerateLastTurn(ctx)
		if err != nil {
			return false, err
		}
		r.printReply(res)
	case "/quick":
		action, ok := constant.FindQuickAction(arg)
		if !ok {
			return false, fmt.Errorf("unknown quick action %q", arg)
		}
		color.New(color.FgHiBlack).Println(action.Prompt)
		return false, r.send(ctx, action.Prompt)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, message string) error {
	turn, err := r.store.StartTurn(ctx, message)
	if err != nil {
		return err
	}

	select {
	case <-turn.Done():
	default:
		color.New(color.FgHiBlack).Println("thinking...")
	}

	res, err := turn.Wait(ctx)
	if err != nil {
		return err
	}
	r.printReply(res)
	return nil
}

func (r *repl) printReply(res *store.TurnResult) {
	var genErr *store.GenerationError
	if errors.As(res.Failure, &genErr) {
		color.Red("%s (%s)", res.Reply.Content, genErr.Message)
		return
	}
	color.Cyan("%s", res.Reply.Content)
}

func (r *repl) upload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: /upload <path>...")
	}

	raws := make([]entity.RawFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		raws = append(raws, entity.RawFile{Name: filepath.Base(p), Data: data})
	}

	accepted, skipped := ingest.Partition(raws)
	if len(skipped) > 0 {
		color.Yellow("%s: %s", constant.SkippedFilesWarning, strings.Join(skipped, ", "))
	}
	if len(accepted) == 0 {
		return nil
	}

	records, err := r.store.IngestFiles(ctx, accepted, uuid.Nil)
	if len(records) > 0 {
		color.Green("%d file(s) processed successfully", len(records))
	}
	return err
}

func (r *repl) listFiles() {
	files := r.store.Files()
	if len(files) == 0 {
		fmt.Println("No files uploaded")
		return
	}
	for _, f := range files {
		mark := " "
		if r.store.IsSelected(f.Id) {
			mark = "*"
		}
		fmt.Printf("%s %s  %-32s %s\n", mark, shortId(f.Id), f.Name, mapper.FormatFileSize(f.SizeBytes))
	}
}

func (r *repl) listSessions() {
	activeId := r.store.ActiveSessionId()
	for _, s := range r.store.Sessions() {
		line := fmt.Sprintf("%s  %-32s %d files, %d messages", shortId(s.Id), s.Title, len(s.Files), len(s.Messages))
		if s.Id == activeId {
			color.Green("* %s", line)
		} else {
			fmt.Println("  " + line)
		}
	}
}

func (r *repl) resolveSession(prefix string) (uuid.UUID, error) {
	var ids []uuid.UUID
	for _, s := range r.store.Sessions() {
		ids = append(ids, s.Id)
	}
	return resolveId(prefix, ids, store.ErrSessionNotFound)
}

func (r *repl) resolveFile(prefix string) (uuid.UUID, error) {
	var ids []uuid.UUID
	for _, f := range r.store.Files() {
		ids = append(ids, f.Id)
	}
	return resolveId(prefix, ids, store.ErrFileNotFound)
}

func resolveId(prefix string, ids []uuid.UUID, notFound error) (uuid.UUID, error) {
	if prefix == "" {
		return uuid.Nil, errors.New("an id is required")
	}
	match := uuid.Nil
	for _, id := range ids {
		if strings.HasPrefix(id.String(), prefix) {
			if match != uuid.Nil {
				return uuid.Nil, fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = id
		}
	}
	if match == uuid.Nil {
		return uuid.Nil, notFound
	}
	return match, nil
}

func shortId(id uuid.UUID) string {
	return id.String()[:8]
}
