package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docuchat/internal/config"
	"docuchat/internal/models"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1500
)

// Client calls the completion provider through langchaingo.
type Client struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

// NewClient builds a completion client for the configured provider.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	var llm llms.Model
	var err error
	switch cfg.Provider {
	case "", "openai":
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		err = fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Client{llm: llm, temperature: defaultTemperature, maxTokens: defaultMaxTokens}, nil
}

// Complete sends the prompt messages and returns the answer text. Any
// provider failure comes back as a *models.GenerationError; a chat turn
// never proceeds with a half-formed answer.
func (c *Client) Complete(ctx context.Context, messages []llms.MessageContent) (string, error) {
	log.Debug().Int("messages", len(messages)).Msg("Generating completion")

	res, err := c.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", &models.GenerationError{Err: err}
	}
	if len(res.Choices) == 0 {
		return "", &models.GenerationError{Err: errors.New("completion returned no choices")}
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}
