package viewsync

import (
	"context"
	"sync"

	"notesdb/internal/domain"
)

// State is the lifecycle position of one settings mutation.
type State string

const (
	StateIdle       State = "idle"
	StateApplying   State = "applying"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateSuperseded State = "superseded"
)

// Final reports whether the mutation has resolved.
func (s State) Final() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateSuperseded
}

// Mutation tracks one optimistic settings change.
type Mutation struct {
	ViewID string
	Seq    uint64

	snapshot        domain.ViewSettings
	unconfirmedBase bool // snapshot taken while an earlier mutation was unresolved

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newMutation(viewID string, seq uint64, snapshot domain.ViewSettings) *Mutation {
	return &Mutation{
		ViewID:   viewID,
		Seq:      seq,
		snapshot: snapshot,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

func (m *Mutation) set(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Final() {
		return
	}
	m.state, m.err = state, err
	if state.Final() {
		close(m.done)
	}
}

// State returns the current state.
func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the remote failure, if any.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the mutation resolves.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Snapshot returns the settings captured before the mutation applied.
func (m *Mutation) Snapshot() domain.ViewSettings { return m.snapshot.Clone() }

// UnconfirmedBase reports whether the snapshot was taken while an earlier
// mutation of the same view had not resolved. Rolling back then restores
// settings the server may never have stored.
func (m *Mutation) UnconfirmedBase() bool { return m.unconfirmedBase }

// Wait blocks until the mutation resolves or ctx is done.
func (m *Mutation) Wait(ctx context.Context) (State, error) {
	select {
	case <-m.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.state, m.err
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}
