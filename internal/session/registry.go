// internal/session/registry.go
package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTooManySessions is returned when admission would exceed the
	// concurrent session limit.
	ErrTooManySessions = errors.New("too many concurrent sessions")

	// ErrNotFound is returned when a session ID matches neither an active
	// nor a historical session.
	ErrNotFound = errors.New("session not found")
)

// Config bounds the registry.
type Config struct {
	// MaxConcurrent caps admitted active sessions (default: 10).
	MaxConcurrent int

	// Timeout is the age past which the sweeper times an active session
	// out (default: 1h).
	Timeout time.Duration

	// MaxHistory bounds retained finished sessions, oldest evicted
	// (default: 1000).
	MaxHistory int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent: 10,
		Timeout:       time.Hour,
		MaxHistory:    1000,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent sessions must be positive, got %d", c.MaxConcurrent)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("max history must be positive, got %d", c.MaxHistory)
	}
	return nil
}

// Stats is the aggregate view over all sessions the registry has seen.
// Counters survive history eviction.
type Stats struct {
	Active       int     `json:"active_sessions"`
	Total        int     `json:"total_sessions"`
	Succeeded    int     `json:"successful_sessions"`
	Failed       int     `json:"failed_sessions"`
	SuccessRate  float64 `json:"success_rate"`
	MeanDuration float64 `json:"average_processing_seconds"`
	SystemStatus string  `json:"system_status"`
}

// Registry tracks active sessions and a bounded history of finished ones.
// Finalization is exactly-once: every path into a terminal status goes
// through finalize under the registry lock.
type Registry struct {
	config *Config
	logger *zap.Logger

	mu      sync.Mutex
	active  map[string]*Session
	history map[string]*Session
	order   []string

	total         int
	succeeded     int
	failed        int
	durationSum   time.Duration
	durationCount int
}

// NewRegistry creates a session registry.
func NewRegistry(cfg *Config, logger *zap.Logger) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		config:  cfg,
		logger:  logger,
		active:  make(map[string]*Session),
		history: make(map[string]*Session),
	}, nil
}

// Create admits the session, or returns ErrTooManySessions at the limit.
func (r *Registry) Create(sess *Session) error {
	if sess == nil {
		return errors.New("session is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.active) >= r.config.MaxConcurrent {
		return ErrTooManySessions
	}
	if _, exists := r.active[sess.ID()]; exists {
		return fmt.Errorf("session %s already active", sess.ID())
	}

	r.active[sess.ID()] = sess
	r.total++
	r.logger.Info("session admitted",
		zap.String("session_id", sess.ID()),
		zap.Int("active", len(r.active)))
	return nil
}

// Start moves the session to Processing.
func (r *Registry) Start(id string) error {
	sess, err := r.Lookup(id)
	if err != nil {
		return err
	}
	return sess.markProcessing()
}

// Lookup finds a session by ID, checking active sessions before history.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.active[id]; ok {
		return sess, nil
	}
	if sess, ok := r.history[id]; ok {
		return sess, nil
	}
	return nil, ErrNotFound
}

// Finalize transitions the session into a terminal status exactly once and
// moves it from the active set into history. It returns false when the
// session is unknown or already terminal.
func (r *Registry) Finalize(id string, status Status, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeLocked(id, status, errMsg, time.Now())
}

func (r *Registry) finalizeLocked(id string, status Status, errMsg string, now time.Time) bool {
	sess, ok := r.active[id]
	if !ok {
		return false
	}
	if !sess.tryFinalize(status, errMsg, now) {
		return false
	}

	delete(r.active, id)
	r.history[id] = sess
	r.order = append(r.order, id)
	for len(r.order) > r.config.MaxHistory {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.history, oldest)
	}

	switch status {
	case StatusCompleted:
		r.succeeded++
	case StatusFailed, StatusTimedOut:
		r.failed++
	}
	r.durationSum += sess.Snapshot().Duration
	r.durationCount++

	r.logger.Info("session finalized",
		zap.String("session_id", id),
		zap.String("status", string(status)))
	return true
}

// Cancel finalizes an active session as cancelled.
func (r *Registry) Cancel(id string) bool {
	return r.Finalize(id, StatusCancelled, "cancelled by user")
}

// SweepExpired times out active sessions older than the session timeout and
// returns how many it finalized.
func (r *Registry) SweepExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, sess := range r.active {
		if now.Sub(sess.CreatedAt()) > r.config.Timeout {
			expired = append(expired, id)
		}
	}

	swept := 0
	for _, id := range expired {
		if r.finalizeLocked(id, StatusTimedOut, "session timed out", now) {
			swept++
		}
	}
	if swept > 0 {
		r.logger.Warn("swept expired sessions", zap.Int("count", swept))
	}
	return swept
}

// ActiveCount returns the number of admitted, unfinished sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// History returns snapshots of finished sessions for the owner, newest last.
func (r *Registry) History(ownerID string) []Data {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Data
	for _, id := range r.order {
		sess, ok := r.history[id]
		if !ok {
			continue
		}
		if ownerID == "" || sess.OwnerID() == ownerID {
			out = append(out, sess.Snapshot())
		}
	}
	return out
}

// Stats aggregates registry counters. MeanDuration only counts sessions
// whose duration was recorded.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Active:    len(r.active),
		Total:     r.total,
		Succeeded: r.succeeded,
		Failed:    r.failed,
	}
	finished := r.succeeded + r.failed
	if finished > 0 {
		s.SuccessRate = math.Round(float64(r.succeeded)/float64(finished)*1000) / 1000
	}
	if r.durationCount > 0 {
		s.MeanDuration = math.Round(r.durationSum.Seconds()/float64(r.durationCount)*100) / 100
	}
	s.SystemStatus = "healthy"
	if len(r.active) >= r.config.MaxConcurrent {
		s.SystemStatus = "busy"
	}
	return s
}
