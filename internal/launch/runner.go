package launch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/logging"
)

const (
	DefaultCreateURL = "https://pump.fun/create"
	DefaultAmount    = "1"

	submitLabel = "create coin"
	resultLabel = "Transaction hash"
)

// PageDriver is the set of page interactions the create flow needs.
// *browser.Page implements it.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context, path string) error
	Fill(ctx context.Context, sel browser.Selector, value string) error
	Upload(ctx context.Context, sel browser.Selector, path string) error
	Click(ctx context.Context, sel browser.Selector) error
	SiblingText(ctx context.Context, label string) (string, error)
}

// StepError reports which step aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step is one named page interaction.
type Step struct {
	Name string
	Do   func(ctx context.Context, page PageDriver) error
}

type RunnerConfig struct {
	CreateURL      string
	ScreenshotPath string
	Amount         string
}

// Runner executes the fixed create-coin script against a page.
type Runner struct {
	cfg    RunnerConfig
	logger logging.Logger
}

func NewRunner(cfg RunnerConfig, logger logging.Logger) *Runner {
	if cfg.CreateURL == "" {
		cfg.CreateURL = DefaultCreateURL
	}
	if cfg.ScreenshotPath == "" {
		cfg.ScreenshotPath = "pump.png"
	}
	if cfg.Amount == "" {
		cfg.Amount = DefaultAmount
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Runner{cfg: cfg, logger: logger.With(logging.Field{Key: "component", Value: "launch-runner"})}
}

func fill(name string, sel browser.Selector, value string) Step {
	return Step{Name: name, Do: func(ctx context.Context, page PageDriver) error {
		return page.Fill(ctx, sel, value)
	}}
}

// Steps lists the script for payload. The last step stores the transaction
// hash in *hash. Optional links left empty produce no step.
func (r *Runner) Steps(payload FormPayload, hash *string) []Step {
	steps := []Step{
		{Name: "navigate", Do: func(ctx context.Context, page PageDriver) error {
			return page.Navigate(ctx, r.cfg.CreateURL)
		}},
		{Name: "screenshot", Do: func(ctx context.Context, page PageDriver) error {
			return page.Screenshot(ctx, r.cfg.ScreenshotPath)
		}},
		fill("fill name", browser.CSS(`input[name="name"]`), payload.Name),
		fill("fill ticker", browser.CSS(`input[name="ticker"]`), payload.Ticker),
		fill("fill description", browser.CSS(`textarea[name="description"]`), payload.Description),
		{Name: "upload image", Do: func(ctx context.Context, page PageDriver) error {
			return page.Upload(ctx, browser.CSS(`input[name="image"]`), payload.ImagePath)
		}},
	}

	links := []struct{ field, value string }{
		{"website", payload.Website},
		{"twitter", payload.Twitter},
		{"telegram", payload.Telegram},
	}
	for _, l := range links {
		if strings.TrimSpace(l.value) == "" {
			continue
		}
		steps = append(steps, fill("fill "+l.field, browser.CSS(`input[name="`+l.field+`"]`), l.value))
	}

	steps = append(steps,
		Step{Name: "submit", Do: func(ctx context.Context, page PageDriver) error {
			return page.Click(ctx, browser.Text(submitLabel))
		}},
		fill("fill amount", browser.CSS(`input[name="amount"]`), r.cfg.Amount),
		Step{Name: "confirm", Do: func(ctx context.Context, page PageDriver) error {
			return page.Click(ctx, browser.Text(submitLabel))
		}},
		Step{Name: "read transaction hash", Do: func(ctx context.Context, page PageDriver) error {
			text, err := page.SiblingText(ctx, resultLabel)
			if err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("%w: empty %s", browser.ErrElementNotFound, resultLabel)
			}
			*hash = text
			return nil
		}},
	)
	return steps
}

// StepStatus is reported through the onStep callback.
type StepStatus string

const (
	StepStarted StepStatus = "started"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Run executes the script in order and returns the transaction hash. The first
// failing step aborts the rest and is returned as a *StepError. Cancellation of
// ctx is returned as ctx.Err().
func (r *Runner) Run(ctx context.Context, page PageDriver, payload FormPayload, onStep func(name string, status StepStatus, err error)) (string, error) {
	if onStep == nil {
		onStep = func(string, StepStatus, error) {}
	}
	var hash string
	for _, step := range r.Steps(payload, &hash) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		onStep(step.Name, StepStarted, nil)
		start := time.Now()
		if err := step.Do(ctx, page); err != nil {
			r.logger.Error("launch step failed",
				logging.Field{Key: "step", Value: step.Name},
				logging.Field{Key: "error", Value: err})
			onStep(step.Name, StepFailed, err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", &StepError{Step: step.Name, Err: err}
		}
		r.logger.Debug("launch step done",
			logging.Field{Key: "step", Value: step.Name},
			logging.Field{Key: "took", Value: time.Since(start).String()})
		onStep(step.Name, StepDone, nil)
	}
	r.logger.Info("transaction submitted", logging.Field{Key: "transaction_hash", Value: hash})
	return hash, nil
}
