package phase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"planstream/internal/logging"
	"planstream/internal/types"
)

// ErrUnknownPhase is returned when an operation references a phase name
// outside the configured set. Always a caller error, never retried.
var ErrUnknownPhase = errors.New("unknown phase")

// Store holds one record per configured phase name and provides the only
// legal mutation surface. Safe for concurrent mutation from generation
// goroutines plus concurrent snapshot reads at any cadence.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
}

// NewStore creates a store with one Idle record per name. The configured set
// is fixed for the lifetime of the store.
func NewStore(names []string) (*Store, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("store requires at least one phase name")
	}
	records := make(map[string]*record, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("phase name must not be empty")
		}
		if _, dup := records[name]; dup {
			return nil, fmt.Errorf("duplicate phase name %q", name)
		}
		records[name] = &record{name: name, status: StatusIdle}
		order = append(order, name)
	}
	logging.Store("store created with %d phases", len(order))
	return &Store{records: records, order: order}, nil
}

// get returns the record for name. Caller must hold s.mu.
func (s *Store) get(name string) (*record, error) {
	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
	}
	return r, nil
}

// Names returns the configured phase names in construction order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Initialize resets a phase's transient fields and moves it to Streaming,
// recording the prompt and request context for later audit. Rejected while a
// stream is already in flight so in-flight content is never clobbered.
func (s *Store) Initialize(name, prompt string, reqCtx types.RequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if r.status.Active() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: "initialize"}
	}

	r.content.Reset()
	r.tokenCount = 0
	r.partialContent = ""
	r.errorMessage = ""
	r.completedAt = time.Time{}
	r.cancelledAt = time.Time{}
	r.feedback = nil
	r.originalPrompt = prompt
	r.requestContext = reqCtx
	r.startedAt = time.Now()
	r.status = StatusStreaming

	logging.Store("phase %s initialized (request=%s)", name, reqCtx.RequestID)
	return nil
}

// AppendContent appends one token and bumps the token counter. Valid only
// while the phase is Streaming or Regenerating.
func (s *Store) AppendContent(name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if !r.status.Active() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: "append content to"}
	}

	r.content.WriteString(token)
	r.tokenCount++
	return nil
}

// UpdateStatus applies a direct status transition. Only the completion
// transition is expressible this way; cancellation and errors carry extra
// state and go through RecordCancellation / RecordError.
func (s *Store) UpdateStatus(name string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if status != StatusComplete || !r.status.Active() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: fmt.Sprintf("set status %s on", status)}
	}

	r.status = StatusComplete
	r.completedAt = time.Now()
	logging.Store("phase %s complete (%d tokens)", name, r.tokenCount)
	return nil
}

// RecordCancellation moves an in-flight phase to Interrupted, preserving the
// streamed content so far as PartialContent.
func (s *Store) RecordCancellation(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if !r.status.Active() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: "record cancellation for"}
	}

	r.status = StatusInterrupted
	r.cancelledAt = time.Now()
	r.partialContent = r.content.String()
	logging.Store("phase %s interrupted after %d tokens", name, r.tokenCount)
	return nil
}

// RecordError moves an in-flight phase to Error with a human-readable message.
func (s *Store) RecordError(name, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if !r.status.Active() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: "record error for"}
	}

	r.status = StatusError
	r.errorMessage = message
	logging.Store("phase %s errored: %s", name, message)
	return nil
}

// RecordSteeringFeedback stores user critique without changing status. May be
// called in any state.
func (s *Store) RecordSteeringFeedback(name string, feedback types.SteeringFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if feedback.RecordedAt.IsZero() {
		feedback.RecordedAt = time.Now()
	}
	feedback.Constraints = append([]string(nil), feedback.Constraints...)
	r.feedback = &feedback
	logging.StoreDebug("phase %s steering feedback recorded", name)
	return nil
}

// ResetForRegeneration clears attempt state and moves a terminal phase to
// Regenerating. The original prompt survives unless the caller separately
// calls CaptureGenerationContext with the rebuilt prompt.
func (s *Store) ResetForRegeneration(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	if !r.status.Terminal() {
		return &InvalidTransitionError{Phase: name, From: r.status, Op: "reset for regeneration"}
	}

	r.content.Reset()
	r.tokenCount = 0
	r.partialContent = ""
	r.errorMessage = ""
	r.completedAt = time.Time{}
	r.cancelledAt = time.Time{}
	r.startedAt = time.Now()
	r.regenerationCount++
	r.status = StatusRegenerating

	logging.Store("phase %s reset for regeneration #%d", name, r.regenerationCount)
	return nil
}

// CaptureGenerationContext overwrites the recorded prompt and request context
// without touching status or content. Used when regenerating with a new
// steering-informed prompt.
func (s *Store) CaptureGenerationContext(name, prompt string, reqCtx types.RequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(name)
	if err != nil {
		return err
	}
	r.originalPrompt = prompt
	r.requestContext = reqCtx
	return nil
}

// State returns an immutable snapshot of one phase.
func (s *Store) State(name string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.get(name)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(), nil
}

// AllStates returns a snapshot of every phase, keyed by name.
func (s *Store) AllStates() map[string]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]Snapshot, len(s.records))
	for name, r := range s.records {
		all[name] = r.snapshot()
	}
	return all
}

// IsComplete reports whether every phase is Complete or Error. Interrupted
// does not count as finished: an interrupted phase awaits a caller decision.
func (s *Store) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.status != StatusComplete && r.status != StatusError {
			return false
		}
	}
	return true
}
