package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"plugline/internal/domain"
	"plugline/internal/logging"
)

type chatter interface {
	Chat(ctx context.Context, req *ollama.ChatRequest, fn ollama.ChatResponseFunc) error
}

// Ollama generates code through a local or remote Ollama server.
type Ollama struct {
	client      chatter
	model       string
	temperature float64
	logger      *zap.Logger
}

// NewOllama connects using OLLAMA_HOST from the environment.
func NewOllama(model string, temperature float64, logger *zap.Logger) (*Ollama, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return &Ollama{client: client, model: model, temperature: temperature, logger: logging.OrNop(logger)}, nil
}

func (o *Ollama) Generate(ctx context.Context, capability domain.CapabilityConfig, info domain.CodebaseInfo, snippets map[string]string) (string, error) {
	prompt, err := Prompt(capability, info, snippets)
	if err != nil {
		return "", err
	}
	stream := false
	req := &ollama.ChatRequest{
		Model: o.model,
		Messages: []ollama.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.temperature,
		},
	}
	var out strings.Builder
	start := time.Now()
	err = o.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		out.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	logging.OrNop(o.logger).Info("generated integration code",
		zap.String("capability", capability.Name),
		zap.String("model", o.model),
		zap.Duration("took", time.Since(start)))
	code := StripFences(out.String())
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("ollama returned no code for %s", capability.Name)
	}
	return code, nil
}
