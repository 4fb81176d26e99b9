// Package llm calls a language model served behind an OpenAI-compatible API,
// typically a local inference server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/raysh454/coinpilot/internal/logging"
)

const (
	DefaultBaseURL = "http://localhost:8080/v1"
	DefaultModel   = "local-model"
)

var ErrEmptyCompletion = errors.New("llm: model returned no text")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds one completion. Zero means 60s.
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIGenerator is safe for concurrent use; it holds no per-call state.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    Config
	logger logging.Logger
}

func NewOpenAIGenerator(cfg Config, logger logging.Logger) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	// Local servers accept any key.
	openAIConfig := openai.DefaultConfig(cfg.APIKey)
	openAIConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(openAIConfig),
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "llm"}),
	}
}

// Generate sends prompt as a single user message and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		g.logger.Error("completion failed", logging.Field{Key: "error", Value: err})
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	g.logger.Debug("completion done",
		logging.Field{Key: "model", Value: g.cfg.Model},
		logging.Field{Key: "tokens", Value: resp.Usage.TotalTokens},
		logging.Field{Key: "took", Value: time.Since(start).String()})
	return text, nil
}
