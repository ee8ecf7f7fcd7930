package worker

import (
	"sync"
	"time"
)

type State string

const (
	StateStarting   State = "starting"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StateWaiting    State = "waiting"
	StateStopped    State = "stopped"
)

type Status struct {
	State       State             `json:"state"`
	CurrentSeed string            `json:"current_seed,omitempty"`
	LastPoll    *time.Time        `json:"last_poll,omitempty"`
	LastOutcome Outcome           `json:"last_outcome,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	Processed   map[Outcome]int64 `json:"processed"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status Status
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		status: Status{
			State:     StateStarting,
			Processed: map[Outcome]int64{},
		},
	}
}

func (t *statusTracker) setState(state State, seedID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = state
	t.status.CurrentSeed = seedID
}

func (t *statusTracker) polled(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastPoll = &at
}

func (t *statusTracker) record(result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastOutcome = result.Outcome
	t.status.LastError = ""
	if result.Err != nil {
		t.status.LastError = result.Err.Error()
	}
	t.status.Processed[result.Outcome]++
}

func (t *statusTracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Processed = make(map[Outcome]int64, len(t.status.Processed))
	for k, v := range t.status.Processed {
		s.Processed[k] = v
	}
	if t.status.LastPoll != nil {
		at := *t.status.LastPoll
		s.LastPoll = &at
	}
	return s
}
