package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"docchat-be/internal/config"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/events"
	pktNats "docchat-be/pkg/nats"

	"github.com/fatih/color"
)

// tail prints store events published to NATS by a running docchat server.
func main() {
	filter := flag.String("type", ">", "event type to follow, e.g. TURN_FAILED")
	durable := flag.String("durable", "", "durable consumer name; empty follows new events only")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		color.Red("Unable to load config: %v", err)
		os.Exit(1)
	}
	if cfg.App.NatsURL == "" {
		color.Red("NATS_URL is not set")
		os.Exit(1)
	}

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger.NewIsolatedLogger("logs/tail.log"))
	if err != nil {
		color.Red("Failed to connect: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subject := pktNats.Subject(*filter)
	if err := sub.Subscribe(ctx, subject, *durable, printEvent); err != nil {
		color.Red("Subscribe failed: %v", err)
		os.Exit(1)
	}

	color.Cyan("Following %s (Ctrl+C to stop)", subject)
	<-ctx.Done()
}

func printEvent(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return err
	}

	stamp := event.Timestamp().Format("15:04:05.000")
	eventColor(event.EventType()).Printf("%s %-18s ", stamp, event.EventType())
	color.New(color.FgHiBlack).Println(string(payload))
	return nil
}

func eventColor(eventType string) *color.Color {
	switch eventType {
	case events.TurnFailed:
		return color.New(color.FgRed, color.Bold)
	case events.TurnCompleted, events.MessageAppended:
		return color.New(color.FgGreen)
	case events.TurnStarted:
		return color.New(color.FgYellow)
	case events.SessionDeleted, events.FileDeleted, events.MessageRemoved:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgCyan)
	}
}
