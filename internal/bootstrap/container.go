package bootstrap

import (
	"context"
	"fmt"
	"time"

	"docchat-be/internal/config"
	"docchat-be/internal/controller"
	"docchat-be/internal/handler"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/seed"
	"docchat-be/internal/service"
	"docchat-be/internal/websocket"
	"docchat-be/pkg/events"
	"docchat-be/pkg/ingest"
	"docchat-be/pkg/llm/factory"
	pktNats "docchat-be/pkg/nats"
	"docchat-be/pkg/rag/response"
	"docchat-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger *logger.ZapLogger
	Store  *store.SessionStore

	// Controllers
	ChatbotController controller.IChatbotController

	// Background services, run by main
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	EventHandler *handler.EventHandler

	seedDemo bool
	closers  []func() error
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	llmProvider, err := factory.NewLLMProvider(ProviderSettings(cfg))
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	generator := response.NewGenerator(llmProvider, sysLogger,
		response.WithSampling(cfg.Ai.Temperature, cfg.Ai.MaxTokens),
	)
	ingester := ingest.NewIngester(cfg.Chat.MaxUploadBytes, sysLogger)

	c := &Container{Logger: sysLogger, seedDemo: cfg.App.SeedDemo}

	// 2. Event bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, pubSub.Close)
	publisherService := service.NewPublisherService(cfg.Chat.EventsTopic, pubSub)

	// 3. Outward transports, all optional
	sink := events.MultiPublisher{}

	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			sink = append(sink, natsPub)
			c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
		}
	}

	rdb := newRedisClient(cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	wsLogger := logger.NewIsolatedLogger("logs/events.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	sink = append(events.MultiPublisher{wsHub}, sink...)

	consumerService := service.NewConsumerService(pubSub, cfg.Chat.EventsTopic, sink, sysLogger)

	// 4. Store and services
	sessionStore := store.NewSessionStore(generator, ingester,
		store.WithPublisher(publisherService),
		store.WithLogger(sysLogger),
		store.WithTurnTimeout(cfg.Chat.TurnTimeout),
		store.WithContentRepository(memory.NewFileContentRepository()),
	)

	chatbotService := service.NewChatbotService(sessionStore, sysLogger)

	// 5. Controllers and handlers
	c.Store = sessionStore
	c.ChatbotController = controller.NewChatbotController(chatbotService)
	c.ConsumerService = consumerService
	c.WebSocketHub = wsHub
	c.EventHandler = handler.NewEventHandler(wsHub, wsLogger)
	return c, nil
}

// SeedDemo imports the demo sessions when SEED_DEMO is set. Call it after
// ConsumerService is Ready so the seed events reach the transports.
func (c *Container) SeedDemo() error {
	if !c.seedDemo {
		return nil
	}
	seeded, err := seed.SeedDemoSessions(c.Store, time.Now())
	if err != nil {
		return err
	}
	c.Logger.Info("Bootstrap", "Seeded demo sessions", map[string]interface{}{"sessions": len(seeded)})
	return nil
}

// Close releases the transports in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Bootstrap", "Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.Logger.Sync()
}

// ProviderSettings picks the endpoint matching the configured provider.
func ProviderSettings(cfg *config.Config) factory.Settings {
	baseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "huggingface" {
		baseURL = cfg.Ai.HuggingFaceBaseURL
	}
	return factory.Settings{
		Provider:    cfg.Ai.LLMProvider,
		Model:       cfg.Ai.LLMModel,
		BaseURL:     baseURL,
		GeminiKey:   cfg.Keys.GoogleGemini,
		HuggingFace: cfg.Keys.HuggingFace,
	}
}

func newRedisClient(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Failed to connect to Redis, cluster relay disabled", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}
