// internal/session/session.go

// Package session holds the session model and the in-memory registry that
// admits, tracks, finalizes, and sweeps pipeline sessions.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/diagramd/internal/advisor"
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
)

// Status is the lifecycle state of a session. Transitions are monotonic:
// Pending moves to Processing, Processing moves to exactly one terminal
// status, and terminal states never change.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimedOut   Status = "timed_out"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Summary aggregates the assembled output.
type Summary struct {
	ArtifactCount  int      `json:"artifact_count"`
	ValidCount     int      `json:"valid_count"`
	MeanQuality    float64  `json:"mean_quality,omitempty"`
	TopSuggestions []string `json:"top_suggestions,omitempty"`
}

// Output is the assembled result of a completed pipeline run.
type Output struct {
	Artifacts map[diagram.Type]*diagram.Artifact `json:"artifacts"`
	Quality   map[diagram.Type]*quality.Record   `json:"quality,omitempty"`
	Advice    *advisor.Result                    `json:"advice,omitempty"`
	Summary   Summary                            `json:"summary"`
}

// Data is the mutable session state. The pipeline goroutine is the single
// writer; readers take snapshots through the owning Session.
type Data struct {
	ID           string                             `json:"session_id"`
	OwnerID      string                             `json:"owner_id"`
	Request      string                             `json:"request"`
	CreatedAt    time.Time                          `json:"created_at"`
	CurrentStage string                             `json:"current_stage"`
	Status       Status                             `json:"status"`
	Requirements *analysis.RequirementResult        `json:"requirements,omitempty"`
	System       *analysis.SystemResult             `json:"system,omitempty"`
	Artifacts    map[diagram.Type]*diagram.Artifact `json:"artifacts,omitempty"`
	Quality      map[diagram.Type]*quality.Record   `json:"quality,omitempty"`
	Advice       *advisor.Result                    `json:"advice,omitempty"`
	Duration     time.Duration                      `json:"duration,omitempty"`
	ErrorMessage string                             `json:"error_message,omitempty"`
	Output       *Output                            `json:"output,omitempty"`
}

// Session wraps Data behind a mutex so status reads and stage updates stay
// race-free across the pipeline, HTTP handlers, and the sweeper.
type Session struct {
	mu   sync.RWMutex
	data Data
}

// New creates a pending session. A generated owner ID is assigned when none
// is given.
func New(ownerID, request string) *Session {
	if ownerID == "" {
		ownerID = "user_" + uuid.NewString()[:8]
	}
	return &Session{data: Data{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Request:   request,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}}
}

func (s *Session) ID() string { return s.data.ID }

func (s *Session) OwnerID() string { return s.data.OwnerID }

func (s *Session) Request() string { return s.data.Request }

func (s *Session) CreatedAt() time.Time { return s.data.CreatedAt }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Status
}

// SetStage records the pipeline stage about to run. Finalized sessions are
// immutable, so the call is dropped after a terminal transition.
func (s *Session) SetStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status.Terminal() {
		return
	}
	s.data.CurrentStage = stage
}

// Update applies fn under the write lock. Finalized sessions are immutable,
// so updates arriving after a terminal transition are dropped.
func (s *Session) Update(fn func(*Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status.Terminal() {
		return
	}
	fn(&s.data)
}

// Snapshot returns a copy of the session state. Artifacts and quality
// records are deep-copied so the caller can read them while the pipeline
// keeps writing.
func (s *Session) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.data
	if s.data.Artifacts != nil {
		snap.Artifacts = make(map[diagram.Type]*diagram.Artifact, len(s.data.Artifacts))
		for t, a := range s.data.Artifacts {
			snap.Artifacts[t] = a.Clone()
		}
	}
	if s.data.Quality != nil {
		snap.Quality = make(map[diagram.Type]*quality.Record, len(s.data.Quality))
		for t, r := range s.data.Quality {
			snap.Quality[t] = r.Clone()
		}
	}
	return snap
}

// markProcessing moves Pending to Processing.
func (s *Session) markProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status != StatusPending {
		return fmt.Errorf("cannot start session in status %q", s.data.Status)
	}
	s.data.Status = StatusProcessing
	return nil
}

// tryFinalize applies a terminal status exactly once, stamping the duration.
// It returns false when the session is already terminal.
func (s *Session) tryFinalize(status Status, errMsg string, now time.Time) bool {
	if !status.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status.Terminal() {
		return false
	}
	s.data.Status = status
	s.data.ErrorMessage = errMsg
	s.data.Duration = now.Sub(s.data.CreatedAt)
	return true
}
