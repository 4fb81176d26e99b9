package launch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/coinpilot/internal/history"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/persist"
	"github.com/raysh454/coinpilot/internal/steel"
)

// Record is written to the transaction file once per run.
type Record struct {
	TransactionHash string `json:"transaction_hash,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Event is a progress notification: either a guard state change or a step
// status.
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"` // "state" | "step"
	State     State     `json:"state,omitempty"`
	Step      string    `json:"step,omitempty"`
	Status    string    `json:"status,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	ViewerURL string    `json:"viewer_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Result summarizes a finished run.
type Result struct {
	RunID           string    `json:"run_id"`
	State           State     `json:"state"`
	SessionID       string    `json:"session_id,omitempty"`
	ViewerURL       string    `json:"viewer_url,omitempty"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// RunRecorder stores finished runs. *history.Store implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run history.Run) (history.Run, error)
}

type FlowConfig struct {
	Runner RunnerConfig
	// OutputDir holds pump.png, transaction.json and error.log.
	OutputDir string
}

// Flow runs one complete launch: session, page, script, result files.
type Flow struct {
	cfg          FlowConfig
	sessions     SessionProvider
	newConnector func() Connector
	recorder     RunRecorder
	logger       logging.Logger

	mu      sync.Mutex
	onEvent func(Event)
}

func NewFlow(cfg FlowConfig, sessions SessionProvider, newConnector func() Connector, recorder RunRecorder, logger logging.Logger) *Flow {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Runner.ScreenshotPath == "" {
		cfg.Runner.ScreenshotPath = filepath.Join(cfg.OutputDir, "pump.png")
	}
	return &Flow{
		cfg:          cfg,
		sessions:     sessions,
		newConnector: newConnector,
		recorder:     recorder,
		logger:       logger.With(logging.Field{Key: "component", Value: "launch"}),
	}
}

// OnEvent sets the progress callback. It must not block.
func (f *Flow) OnEvent(fn func(Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEvent = fn
}

func (f *Flow) emit(ev Event) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		ev.At = time.Now()
		fn(ev)
	}
}

func (f *Flow) TransactionPath() string { return filepath.Join(f.cfg.OutputDir, "transaction.json") }
func (f *Flow) ErrorLogPath() string    { return filepath.Join(f.cfg.OutputDir, "error.log") }

// Run executes the launch for payload under a fresh run id. On failure the
// error is appended to error.log and returned; the returned Result is always
// non-nil.
func (f *Flow) Run(ctx context.Context, payload FormPayload) (*Result, error) {
	return f.RunWithID(ctx, uuid.New().String(), payload)
}

// RunWithID is Run with a caller-chosen run id. The id is carried by every
// event, the Result and the history row.
func (f *Flow) RunWithID(ctx context.Context, runID string, payload FormPayload) (*Result, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	res := &Result{RunID: runID, StartedAt: time.Now()}
	logger := f.logger.With(logging.Field{Key: "run_id", Value: res.RunID})

	if err := payload.Validate(); err != nil {
		res.State = StateFailed
		return f.finish(ctx, logger, res, err)
	}

	guard := NewGuard(f.sessions, f.newConnector, logger)
	guard.OnState(func(s State, sess *steel.Session) {
		ev := Event{RunID: res.RunID, Kind: "state", State: s}
		if sess != nil {
			ev.SessionID, ev.ViewerURL = sess.ID, sess.ViewerURL
		}
		f.emit(ev)
	})
	runner := NewRunner(f.cfg.Runner, logger)

	err := guard.Run(ctx, func(ctx context.Context, page PageDriver) error {
		hash, err := runner.Run(ctx, page, payload, func(name string, status StepStatus, err error) {
			ev := Event{RunID: res.RunID, Kind: "step", Step: name, Status: string(status)}
			if err != nil {
				ev.Error = err.Error()
			}
			f.emit(ev)
		})
		res.TransactionHash = hash
		return err
	})

	res.State = guard.State()
	if sess := guard.Session(); sess != nil {
		res.SessionID, res.ViewerURL = sess.ID, sess.ViewerURL
	}
	return f.finish(ctx, logger, res, err)
}

func (f *Flow) finish(ctx context.Context, logger logging.Logger, res *Result, runErr error) (*Result, error) {
	res.FinishedAt = time.Now()

	record := Record{TransactionHash: res.TransactionHash}
	if runErr != nil {
		res.Error = runErr.Error()
		record = Record{ErrorMessage: res.Error}
		if err := persist.NewErrorLog(f.ErrorLogPath()).Append(res.Error); err != nil {
			logger.Error("failed to append error log", logging.Field{Key: "error", Value: err})
		}
	}
	var saveErr error
	if err := persist.Save(record, f.TransactionPath()); err != nil {
		logger.Error("failed to save transaction record", logging.Field{Key: "error", Value: err})
		saveErr = err
	}

	if f.recorder != nil {
		status, detail := history.StatusCompleted, res.TransactionHash
		if runErr != nil {
			status, detail = history.StatusFailed, res.Error
		}
		_, err := f.recorder.RecordRun(context.WithoutCancel(ctx), history.Run{
			ID:         res.RunID,
			Kind:       "launch",
			Status:     status,
			SessionID:  res.SessionID,
			Detail:     detail,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		})
		if err != nil {
			logger.Warn("failed to record run", logging.Field{Key: "error", Value: err})
		}
	}

	if runErr != nil {
		logger.Error("launch failed", logging.Field{Key: "error", Value: runErr})
		return res, runErr
	}
	if saveErr != nil {
		return res, saveErr
	}
	logger.Info("launch completed",
		logging.Field{Key: "transaction_hash", Value: res.TransactionHash},
		logging.Field{Key: "took", Value: res.FinishedAt.Sub(res.StartedAt).String()})
	return res, nil
}

// IsStepFailure reports whether err came from a page step.
func IsStepFailure(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}
