package generation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"planstream/internal/logging"
)

// attempt tracks one in-flight generation. The cancelled flag is the
// cooperative signal checked at every token; the context cancel unblocks
// the backend call itself.
type attempt struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// cancelRegistry owns the per-phase cancellation signals. Register and
// deregister pair as acquire/release around every generation attempt, with
// release deferred so cleanup happens on every exit path.
type cancelRegistry struct {
	mu     sync.Mutex
	active map[string]*attempt
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{active: make(map[string]*attempt)}
}

// acquire registers a fresh attempt for name. Only one attempt may be active
// per phase name; a second concurrent attempt is rejected, never silently
// replaced.
func (r *cancelRegistry) acquire(name string, cancel context.CancelFunc) (*attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrGenerationActive, name)
	}
	a := &attempt{cancel: cancel}
	r.active[name] = a
	return a, nil
}

// release removes the attempt for name.
func (r *cancelRegistry) release(name string) {
	r.mu.Lock()
	delete(r.active, name)
	r.mu.Unlock()
}

// signal requests cancellation of the active attempt for name. Returns false
// when no attempt is registered (a no-op, not an error).
func (r *cancelRegistry) signal(name string) bool {
	r.mu.Lock()
	a, ok := r.active[name]
	r.mu.Unlock()

	if !ok {
		logging.GenerationDebug("cancel for %s ignored: no active generation", name)
		return false
	}
	a.cancelled.Store(true)
	a.cancel()
	logging.Generation("cancellation signalled for phase %s", name)
	return true
}
