package response

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docchat-be/internal/constant"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoDocuments = errors.New("response: no document text supplied")

// Generator answers a user query from the text of the selected documents.
type Generator struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
	temperature float64
	maxTokens   int
}

type GeneratorOption func(*Generator)

func WithSampling(temperature float64, maxTokens int) GeneratorOption {
	return func(g *Generator) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

func NewGenerator(llmProvider llm.LLMProvider, log logger.ILogger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llmProvider: llmProvider,
		logger:      log,
		temperature: constant.DefaultTemperature,
		maxTokens:   constant.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate is a single, non-retried call to the provider.
func (g *Generator) Generate(ctx context.Context, query string, documents []string) (string, error) {
	if len(documents) == 0 {
		return "", ErrNoDocuments
	}

	ctx, span := otel.Tracer("docchat-be/rag/response").Start(ctx, "response.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	span.SetAttributes(
		attribute.Int("documents.count", len(documents)),
		attribute.Int("query.length", len(query)),
	)

	prompt := BuildPrompt(query, documents)

	g.logger.Debug("ResponseGenerator", "Sending prompt", map[string]interface{}{
		"documents":     len(documents),
		"prompt_length": len(prompt),
	})

	reply, err := g.llmProvider.Generate(ctx, prompt,
		llm.WithTemperature(g.temperature),
		llm.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		g.logger.Error("ResponseGenerator", "LLM generation failed", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("generate response: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		span.SetStatus(codes.Error, "empty reply")
		return "", fmt.Errorf("generate response: %w", llm.ErrEmptyResponse)
	}

	span.SetAttributes(attribute.Int("reply.length", len(reply)))
	return reply, nil
}

// BuildPrompt renders the document assistant prompt.
func BuildPrompt(query string, documents []string) string {
	return fmt.Sprintf(
		constant.DocumentAssistantPromptV1,
		strings.Join(documents, constant.DocumentSeparator),
		query,
	)
}
