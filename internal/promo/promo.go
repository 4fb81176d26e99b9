// Package promo generates promotional posts for a coin with a language model.
package promo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/raysh454/coinpilot/internal/llm"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/persist"
)

// MaxTweetLength is the hard length limit for one post, in characters.
const MaxTweetLength = 280

// CoinData is the content of coin_data.json.
type CoinData struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
}

// LoadCoinData reads path. Missing name and ticker default to
// "Unknown Coin" and "UNKNOWN".
func LoadCoinData(path string) (CoinData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CoinData{}, fmt.Errorf("load coin data: %w", err)
	}
	var cd CoinData
	if err := json.Unmarshal(data, &cd); err != nil {
		return CoinData{}, fmt.Errorf("decode coin data %s: %w", path, err)
	}
	if strings.TrimSpace(cd.Name) == "" {
		cd.Name = "Unknown Coin"
	}
	if strings.TrimSpace(cd.Ticker) == "" {
		cd.Ticker = "UNKNOWN"
	}
	return cd, nil
}

// Prompts returns the prompt set for cd, in generation order.
func Prompts(cd CoinData) []string {
	return []string{
		fmt.Sprintf("Create a promotional tweet about %s (%s).", cd.Name, cd.Ticker),
		fmt.Sprintf("Why should you invest in %s? Here's why:", cd.Name),
		fmt.Sprintf("Learn about %s, the future of cryptocurrency: %s", cd.Name, cd.Description),
		fmt.Sprintf("Write a short, upbeat tweet announcing that $%s is now live.", cd.Ticker),
		fmt.Sprintf("Write a tweet inviting people to join the %s community.", cd.Name),
	}
}

// TweetGenerator produces one post per prompt.
type TweetGenerator struct {
	gen    llm.Generator
	logger logging.Logger
}

func NewTweetGenerator(gen llm.Generator, logger logging.Logger) *TweetGenerator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &TweetGenerator{gen: gen, logger: logger.With(logging.Field{Key: "component", Value: "promo"})}
}

// Generate returns exactly len(prompts) non-empty posts in prompt order, or
// the first error.
func (tg *TweetGenerator) Generate(ctx context.Context, prompts []string) ([]string, error) {
	tweets := make([]string, 0, len(prompts))
	for i, prompt := range prompts {
		tg.logger.Info("generating tweet", logging.Field{Key: "index", Value: i}, logging.Field{Key: "prompt", Value: prompt})
		text, err := tg.gen.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i+1, err)
		}
		tweet := Clip(text, MaxTweetLength)
		if tweet == "" {
			return nil, fmt.Errorf("prompt %d: %w", i+1, llm.ErrEmptyCompletion)
		}
		tweets = append(tweets, tweet)
	}
	return tweets, nil
}

// Clip collapses whitespace runs, newlines included, to one space and cuts
// the result to at most max runes.
func Clip(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}

// SaveTweets writes each tweet followed by a blank line.
func SaveTweets(tweets []string, path string) error {
	var b strings.Builder
	for _, t := range tweets {
		b.WriteString(t)
		b.WriteString("\n\n")
	}
	return persist.AtomicWriteFile(path, []byte(b.String()), 0o644)
}
