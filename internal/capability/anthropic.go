package capability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/structa/switchboard/internal/qa"
)

const generatorSystemPrompt = `You answer questions about product documentation.
Ground every factual claim in the numbered context chunks you are given and
cite the supporting chunk inline as [n]. Never cite a number that does not
appear in the context. If the context does not support an answer, say so
instead of guessing.`

// AnthropicGenerator implements Generator against the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropicGenerator builds a Generator using ambient API credentials
// (ANTHROPIC_API_KEY).
func NewAnthropicGenerator(model anthropic.Model, maxTokens int64, logger *slog.Logger) *AnthropicGenerator {
	return &AnthropicGenerator{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.With("system", "generator"),
	}
}

// Generate sends the prompt plus numbered context chunks and returns the
// response text.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, contextChunks []qa.Candidate) (string, error) {
	start := time.Now()

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: generatorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserMessage(prompt, contextChunks))),
		},
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "generation call failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("generate: %w: %w", ErrUnavailable, err)
	}

	g.logger.InfoContext(ctx, "generation call complete",
		"duration", time.Since(start),
		"stop_reason", msg.StopReason,
	)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("generate: %w: no text content", ErrBadResponse)
}

func buildUserMessage(prompt string, chunks []qa.Candidate) string {
	var b strings.Builder
	b.WriteString(prompt)

	if len(chunks) > 0 {
		b.WriteString("\n\nContext:\n")
		for i, c := range chunks {
			fmt.Fprintf(&b, "[%d] (%s %s", i+1, c.Metadata.Product, c.Metadata.Version)
			if c.Metadata.Section != "" {
				fmt.Fprintf(&b, ", %s", c.Metadata.Section)
			}
			fmt.Fprintf(&b, ")\n%s\n", c.Text)
		}
	}

	return b.String()
}
