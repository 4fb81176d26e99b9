package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/logging"
)

// ErrJobActive is returned when a launch is requested while one is running.
var ErrJobActive = errors.New("a launch job is already running")

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress: guard state or step updates
	Launch *launch.Event `json:"launch,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

type Job struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Result *launch.Result `json:"result,omitempty"`
}

// LaunchFunc runs one launch under runID and reports progress through onEvent.
type LaunchFunc func(ctx context.Context, runID string, payload launch.FormPayload, onEvent func(launch.Event)) (*launch.Result, error)

// ApplicationLaunchFunc adapts Application to LaunchFunc.
func ApplicationLaunchFunc(a *Application) LaunchFunc {
	return func(ctx context.Context, runID string, payload launch.FormPayload, onEvent func(launch.Event)) (*launch.Result, error) {
		flow, err := a.LaunchFlow()
		if err != nil {
			return nil, err
		}
		flow.OnEvent(onEvent)
		return flow.RunWithID(ctx, runID, payload)
	}
}

// Orchestrator runs launches as background jobs, one at a time.
type Orchestrator struct {
	launch LaunchFunc
	logger logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	active     string
	wg         sync.WaitGroup
}

func NewOrchestrator(fn LaunchFunc, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Orchestrator{
		launch:     fn,
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errText string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		j.Error = errText
	}
	o.jobsMu.Unlock()
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errText})
}

// StartLaunchJob starts a launch in the background. The job outlives ctx's
// cancellation; use CancelJob to stop it.
func (o *Orchestrator) StartLaunchJob(ctx context.Context, payload launch.FormPayload) (*Job, error) {
	jobID := uuid.New().String()
	job := &Job{
		ID:        jobID,
		Type:      "launch",
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 64),
	}

	o.jobsMu.Lock()
	if o.active != "" {
		o.jobsMu.Unlock()
		return nil, ErrJobActive
	}
	o.active = jobID
	o.jobs[jobID] = job
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.jobCancels[jobID] = cancel
	snapshot := *job
	o.jobsMu.Unlock()

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})
	o.logger.Info("launch job started", logging.Field{Key: "job_id", Value: jobID})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.jobsMu.Lock()
			if j, ok := o.jobs[jobID]; ok {
				j.EndedAt = time.Now().UTC()
				// Close events channel so websocket loop can terminate cleanly
				close(j.Events)
			}
			if c := o.jobCancels[jobID]; c != nil {
				c()
			}
			delete(o.jobCancels, jobID)
			if o.active == jobID {
				o.active = ""
			}
			o.jobsMu.Unlock()
		}()

		o.setStatus(jobID, JobRunning, "")

		// The job id doubles as the run id.
		res, err := o.launch(jobCtx, jobID, payload, func(ev launch.Event) {
			if ev.RunID == "" {
				ev.RunID = jobID
			}
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Launch: &ev})
		})

		o.jobsMu.Lock()
		if j, ok := o.jobs[jobID]; ok {
			j.Result = res
		}
		o.jobsMu.Unlock()

		switch {
		case err != nil && jobCtx.Err() != nil:
			o.setStatus(jobID, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.logger.Warn("launch job failed", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err})
			o.setStatus(jobID, JobFailed, err.Error())
		default:
			o.jobsMu.Lock()
			if j, ok := o.jobs[jobID]; ok {
				j.Status = JobDone
			}
			o.jobsMu.Unlock()
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Status: JobDone})
		}
	}()

	return &snapshot, nil
}

// CancelJob reports whether a running job with that id was found.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetJob returns a copy of the job, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ListJobs returns copies of all jobs, newest first.
func (o *Orchestrator) ListJobs() []Job {
	o.jobsMu.Lock()
	out := make([]Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, *j)
	}
	o.jobsMu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Events returns the job's event stream. It is closed when the job ends.
// There is one stream per job; concurrent readers split the events.
func (o *Orchestrator) Events(jobID string) (<-chan JobEvent, bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, false
	}
	return j.Events, true
}

// Close cancels running jobs and waits for them to finish cleanup.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.wg.Wait()
}
