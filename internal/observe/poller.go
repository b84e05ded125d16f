// Package observe provides a polling reporter over the phase store. The
// store's snapshot surface is safe to read at any cadence, so the poller
// just ticks, diffs statuses against its previous pass, and reports
// transitions. It never mutates phase state.
package observe

import (
	"context"
	"sync"
	"time"

	"planstream/internal/logging"
	"planstream/internal/phase"
)

// Transition is one observed status change between two polls. Intermediate
// states that come and go inside a single interval are not reported; only
// the states a poll actually saw.
type Transition struct {
	Phase string
	From  phase.Status
	To    phase.Status
	Snap  phase.Snapshot
}

// TransitionFunc receives observed transitions. Called from the poller
// goroutine.
type TransitionFunc func(Transition)

// Poller periodically reads AllStates and reports status transitions.
type Poller struct {
	store    *phase.Store
	interval time.Duration
	onChange TransitionFunc

	mu      sync.Mutex
	last    map[string]phase.Status
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewPoller creates a poller over store. interval must be positive;
// onChange may be nil to only log transitions.
func NewPoller(store *phase.Store, interval time.Duration, onChange TransitionFunc) *Poller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Poller{
		store:    store,
		interval: interval,
		onChange: onChange,
		last:     make(map[string]phase.Status),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins polling. Non-blocking; the loop runs until Stop or ctx
// cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true

	// Seed the baseline so startup states are not reported as transitions.
	for name, snap := range p.store.AllStates() {
		p.last[name] = snap.Status
	}
	p.mu.Unlock()

	logging.Observe("poller started, interval=%v", p.interval)
	go p.run(ctx)
}

// Stop stops the poller and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
	logging.Observe("poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll diffs the current snapshot set against the previous pass.
func (p *Poller) poll() {
	states := p.store.AllStates()

	p.mu.Lock()
	defer p.mu.Unlock()

	for name, snap := range states {
		prev, seen := p.last[name]
		if seen && prev == snap.Status {
			continue
		}
		p.last[name] = snap.Status
		if !seen {
			continue
		}

		logging.Observe("phase %s: %s -> %s (tokens=%d)", name, prev, snap.Status, snap.TokenCount)
		if p.onChange != nil {
			p.onChange(Transition{Phase: name, From: prev, To: snap.Status, Snap: snap})
		}
	}
}

// Progress returns a point-in-time view of every phase: status and token
// count, for status lines and final summaries.
func (p *Poller) Progress() map[string]phase.Snapshot {
	return p.store.AllStates()
}
