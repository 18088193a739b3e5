package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/thread-harvester/internal/progress"
)

// RunStatus is the live view of one run assembled from its events.
type RunStatus struct {
	RunID       uuid.UUID     `json:"run_id"`
	Subject     string        `json:"subject"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Running     bool          `json:"running"`
	State       string        `json:"state,omitempty"`
	Pages       int64         `json:"pages"`
	Records     int64         `json:"records"`
	Total       int64         `json:"total"`
	Watermark   string        `json:"watermark,omitempty"`
	Retries     int64         `json:"retries"`
	Misses      int64         `json:"enrich_misses"`
	LastError   string        `json:"last_error,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
	LastAttempt int           `json:"last_attempt,omitempty"`
}

// StatusSink keeps an in-memory snapshot of every run it has seen.
type StatusSink struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*RunStatus
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{runs: make(map[uuid.UUID]*RunStatus)}
}

// Consume folds the batch into the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	id := evt.RunUUID()
	st, ok := s.runs[id]
	if !ok {
		st = &RunStatus{RunID: id, Subject: evt.Subject, StartedAt: evt.TS, Running: true}
		s.runs[id] = st
	}
	st.UpdatedAt = evt.TS
	switch evt.Stage {
	case progress.StageRunStart:
		st.StartedAt = evt.TS
		st.Total = evt.Total
	case progress.StagePageCommitted:
		st.Pages++
		st.Records += evt.Records
		st.Total = evt.Total
		st.Watermark = evt.Watermark
		st.LastAttempt = 0
	case progress.StagePageRetry:
		st.Retries++
		st.LastAttempt = evt.Attempt
		st.LastError = evt.Note
	case progress.StageEnrichMiss:
		st.Misses++
	case progress.StageRunDone:
		st.Running = false
		st.State = evt.State
		st.Total = evt.Total
		st.Elapsed = evt.Dur
	case progress.StageRunError:
		st.Running = false
		st.LastError = evt.Note
		st.Elapsed = evt.Dur
	}
}

// Snapshot returns copies of all runs, most recently started first.
func (s *StatusSink) Snapshot() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunStatus, 0, len(s.runs))
	for _, st := range s.runs {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Run returns the status of one run.
func (s *StatusSink) Run(id uuid.UUID) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
