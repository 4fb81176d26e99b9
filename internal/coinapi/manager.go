package coinapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/persist"
)

// Results is written to the results file. A failed call leaves its field null.
type Results struct {
	UpdateResponse    json.RawMessage `json:"update_response"`
	Stats             json.RawMessage `json:"stats"`
	PromotionResponse json.RawMessage `json:"promotion_response"`
}

// Manager runs update, stats and promote in sequence and saves the outcome.
type Manager struct {
	client     *Client
	outputPath string
	logger     logging.Logger
}

func NewManager(client *Client, outputPath string, logger logging.Logger) *Manager {
	if outputPath == "" {
		outputPath = "coin_management_results.json"
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Manager{client: client, outputPath: outputPath, logger: logger.With(logging.Field{Key: "component", Value: "coin-manager"})}
}

// Run never stops on a remote error; each failing call is logged by the
// client and yields null. Only a failure to write the results is returned.
func (m *Manager) Run(ctx context.Context, ticker string, details Details) (*Results, error) {
	res := &Results{}
	var err error
	if res.UpdateResponse, err = m.client.UpdateCoinDetails(ctx, ticker, details); err == nil {
		m.logger.Info("coin details updated", logging.Field{Key: "ticker", Value: ticker})
	}
	if res.Stats, err = m.client.FetchCoinStats(ctx, ticker); err == nil {
		m.logger.Info("coin stats fetched", logging.Field{Key: "ticker", Value: ticker}, logging.Field{Key: "stats", Value: string(res.Stats)})
	}
	if res.PromotionResponse, err = m.client.PromoteCoin(ctx, ticker); err == nil {
		m.logger.Info("coin promoted", logging.Field{Key: "ticker", Value: ticker})
	}

	previous, readErr := os.ReadFile(m.outputPath)
	if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
		m.logger.Warn("could not read previous results", logging.Field{Key: "error", Value: readErr})
	}

	if err := persist.Save(res, m.outputPath); err != nil {
		return res, err
	}

	if len(previous) > 0 {
		current, _ := json.Marshal(res)
		if chunks := persist.DiffJSON(previous, current); len(chunks) > 0 {
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(chunks)
			m.logger.Info("results changed since last run",
				logging.Field{Key: "changes", Value: len(chunks)},
				logging.Field{Key: "diff", Value: buf.String()})
		} else {
			m.logger.Info("results unchanged since last run")
		}
	}
	m.logger.Info("results saved", logging.Field{Key: "path", Value: m.outputPath})
	return res, nil
}
