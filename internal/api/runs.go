package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Event is one entry in a run's status stream. Status events mark run
// transitions; file events (Type "file") report one summarized path, with
// Message carrying the failure reason if it failed.
type Event struct {
	Type     string    `json:"type"`
	Status   RunStatus `json:"status,omitempty"`
	Path     string    `json:"path,omitempty"`
	Message  string    `json:"message,omitempty"`
	Handle   string    `json:"handle,omitempty"`
	Failures int       `json:"failures,omitempty"`
	At       time.Time `json:"at"`
}

// Run tracks one asynchronous ingest. Subscribers get the full event
// history on attach, then live events until the run finishes.
type Run struct {
	ID      string
	Repo    string
	Started time.Time

	mu     sync.Mutex
	status RunStatus
	handle string
	errMsg string
	events []Event
	subs   map[chan Event]struct{}
	closed bool
}

// RunInfo is the JSON view of a run.
type RunInfo struct {
	ID        string    `json:"run_id"`
	Repo      string    `json:"repo"`
	Status    RunStatus `json:"status"`
	Handle    string    `json:"handle,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunInfo{
		ID:        r.ID,
		Repo:      r.Repo,
		Status:    r.status,
		Handle:    r.handle,
		Error:     r.errMsg,
		StartedAt: r.Started,
	}
}

func (r *Run) publish(evt Event) {
	evt.At = time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if evt.Status != "" {
		r.status = evt.Status
	}
	if evt.Handle != "" {
		r.handle = evt.Handle
	}
	r.events = append(r.events, evt)
	for ch := range r.subs {
		select {
		case ch <- evt:
		default: // slow subscriber, it still has the backlog it read
		}
	}
}

func (r *Run) start() {
	r.publish(Event{Type: "status", Status: RunRunning})
}

func (r *Run) complete(handle string, failures int) {
	r.publish(Event{Type: "status", Status: RunCompleted, Handle: handle, Failures: failures})
	r.close()
}

func (r *Run) fail(msg string) {
	r.mu.Lock()
	if !r.closed {
		r.errMsg = msg
	}
	r.mu.Unlock()
	r.publish(Event{Type: "status", Status: RunFailed, Message: msg})
	r.close()
}

func (r *Run) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for ch := range r.subs {
		close(ch)
	}
	r.subs = nil
}

// Subscribe returns a channel carrying the run's past and future events.
// The channel closes when the run finishes. Call the returned cancel
// function when done listening.
func (r *Run) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, len(r.events)+32)
	for _, evt := range r.events {
		ch <- evt
	}
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	r.subs[ch] = struct{}{}
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// Registry holds active and recent runs by id.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

func (g *Registry) Create(repo string) *Run {
	run := &Run{
		ID:      uuid.NewString(),
		Repo:    repo,
		Started: time.Now().UTC(),
		status:  RunQueued,
		subs:    make(map[chan Event]struct{}),
	}
	run.events = append(run.events, Event{Type: "status", Status: RunQueued, At: run.Started})

	g.mu.Lock()
	g.runs[run.ID] = run
	g.mu.Unlock()
	return run
}

func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[id]
	return run, ok
}
