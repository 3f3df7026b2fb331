package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
)

// Runner is the engine operation the API drives.
type Runner interface {
	Run(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error)
}

// RunStatus is the lifecycle state of a registered run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusDone      RunStatus = "done"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

var (
	ErrRunNotFound = errors.New("run not found")
	// ErrBusy is returned when a run is started while another is in progress.
	ErrBusy = errors.New("a synchronization is already running")
)

// RunView is the JSON shape of a run.
type RunView struct {
	ID         string            `json:"id"`
	Status     RunStatus         `json:"status"`
	Request    videosync.Request `json:"request"`
	Progress   *videosync.Event  `json:"progress,omitempty"`
	Error      string            `json:"error,omitempty"`
	Result     *videosync.Result `json:"result,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// StatusMessage is sent on the progress stream when a run ends.
type StatusMessage struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

type runEntry struct {
	view   RunView
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks runs by ID. One run executes at a time, on its own goroutine.
type Registry struct {
	runner Runner
	hub    *Hub
	logger zerolog.Logger

	mu     sync.Mutex
	runs   map[string]*runEntry
	active string
}

// NewRegistry creates a registry that executes runs with runner and streams
// their progress through hub.
func NewRegistry(runner Runner, hub *Hub, logger zerolog.Logger) *Registry {
	return &Registry{
		runner: runner,
		hub:    hub,
		logger: logger.With().Str("component", "run-registry").Logger(),
		runs:   make(map[string]*runEntry),
	}
}

// Start launches req in the background and returns its ID.
func (r *Registry) Start(req videosync.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return "", ErrBusy
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	entry := &runEntry{
		view:   RunView{ID: id, Status: StatusRunning, Request: req, StartedAt: time.Now().UTC()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.runs[id] = entry
	r.active = id

	go r.execute(ctx, id, entry)
	return id, nil
}

func (r *Registry) execute(ctx context.Context, id string, entry *runEntry) {
	defer close(entry.done)
	defer entry.cancel()
	logger := r.logger.With().Str("run_id", id).Logger()

	reporter := videosync.ReporterFunc(func(ev videosync.Event) {
		r.mu.Lock()
		progress := ev
		entry.view.Progress = &progress
		r.mu.Unlock()
		r.publish(id, ev)
	})
	res, err := r.runner.Run(ctx, entry.view.Request, reporter)

	r.mu.Lock()
	now := time.Now().UTC()
	entry.view.Result = res
	entry.view.FinishedAt = &now
	switch {
	case err == nil:
		entry.view.Status = StatusDone
	case errors.Is(err, context.Canceled):
		entry.view.Status = StatusCancelled
		entry.view.Error = err.Error()
	default:
		entry.view.Status = StatusFailed
		entry.view.Error = err.Error()
	}
	r.active = ""
	final := StatusMessage{RunID: id, Status: entry.view.Status, Error: entry.view.Error}
	r.mu.Unlock()

	logger.Info().Str("status", string(final.Status)).Msg("Run finished")
	r.publish(id, final)
}

func (r *Registry) publish(id string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error().Err(err).Str("run_id", id).Msg("Failed to encode progress message")
		return
	}
	r.hub.Broadcast(id, payload)
}

// Get returns a snapshot of a run.
func (r *Registry) Get(id string) (RunView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[id]
	if !ok {
		return RunView{}, ErrRunNotFound
	}
	return entry.view, nil
}

// Cancel asks a run to stop. Cancelling a finished run is a no-op.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	entry, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	entry.cancel()
	return nil
}

// Wait blocks until the run ends or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (RunView, error) {
	r.mu.Lock()
	entry, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return RunView{}, ErrRunNotFound
	}
	select {
	case <-entry.done:
		return r.Get(id)
	case <-ctx.Done():
		return RunView{}, ctx.Err()
	}
}

// Shutdown cancels every run and waits for them to return.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*runEntry, 0, len(r.runs))
	for _, e := range r.runs {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.cancel()
		<-e.done
	}
}
