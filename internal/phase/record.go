// Package phase implements the phase state store: one mutable record per
// configured phase name, mutated only through Store operations, readable at
// any time through immutable snapshots.
//
// The store is the single source of truth for phase lifecycle. Everything
// that streams, cancels, or regenerates goes through its transition surface,
// so an observer polling snapshots can never see a half-applied transition.
package phase

import (
	"fmt"
	"strings"
	"time"

	"planstream/internal/types"
)

// Status represents the lifecycle state of a phase.
type Status string

const (
	StatusIdle         Status = "/idle"         // Created, never generated
	StatusStreaming    Status = "/streaming"    // First attempt in flight
	StatusComplete     Status = "/complete"     // Finished successfully
	StatusInterrupted  Status = "/interrupted"  // Cancelled mid-stream, awaiting a caller decision
	StatusError        Status = "/error"        // Backend failure recorded
	StatusRegenerating Status = "/regenerating" // Steered re-attempt in flight
)

// Active reports whether tokens may currently be appended.
func (s Status) Active() bool {
	return s == StatusStreaming || s == StatusRegenerating
}

// Terminal reports whether the phase reached an end state for its current
// attempt. Interrupted is terminal for the attempt but resumable via
// regeneration.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusInterrupted || s == StatusError
}

// record is the internal mutable state for one phase. Owned exclusively by
// the Store; nothing outside this package ever holds a reference.
type record struct {
	name   string
	status Status

	// PERFORMANCE: strings.Builder avoids quadratic allocations on append
	content    strings.Builder
	tokenCount int

	// Snapshot of content at the moment of cancellation. Kept separate so
	// post-cancellation state is not ambiguous with post-completion state.
	partialContent string

	errorMessage string

	startedAt   time.Time
	completedAt time.Time
	cancelledAt time.Time

	feedback          *types.SteeringFeedback
	regenerationCount int

	originalPrompt string
	requestContext types.RequestContext
}

// Snapshot is an immutable copy of one phase record. Zero time values mean
// the timestamp has not been set for the current attempt.
type Snapshot struct {
	Name              string
	Status            Status
	Content           string
	TokenCount        int
	PartialContent    string
	ErrorMessage      string
	StartedAt         time.Time
	CompletedAt       time.Time
	CancelledAt       time.Time
	Feedback          *types.SteeringFeedback
	RegenerationCount int
	OriginalPrompt    string
	RequestContext    types.RequestContext
}

// snapshot copies the record. Caller must hold the store lock.
func (r *record) snapshot() Snapshot {
	snap := Snapshot{
		Name:              r.name,
		Status:            r.status,
		Content:           r.content.String(),
		TokenCount:        r.tokenCount,
		PartialContent:    r.partialContent,
		ErrorMessage:      r.errorMessage,
		StartedAt:         r.startedAt,
		CompletedAt:       r.completedAt,
		CancelledAt:       r.cancelledAt,
		RegenerationCount: r.regenerationCount,
		OriginalPrompt:    r.originalPrompt,
		RequestContext:    r.requestContext,
	}
	if r.feedback != nil {
		fb := *r.feedback
		fb.Constraints = append([]string(nil), r.feedback.Constraints...)
		snap.Feedback = &fb
	}
	return snap
}

// InvalidTransitionError reports an operation invoked in a state that does
// not permit it. The store's prior state is left unchanged.
type InvalidTransitionError struct {
	Phase string
	From  Status
	Op    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s phase %q in state %s", e.Op, e.Phase, e.From)
}
