package viewsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"notesdb/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Synchronizer: optimistic view settings mutations
// ─────────────────────────────────────────────────────────────

// Events emitted when a mutation resolves.
const (
	EventCommitted  = "view:settings:committed"
	EventRolledBack = "view:settings:rolled_back"
)

// Store is the local slot view settings are read from and written to.
type Store interface {
	View(id string) (domain.View, bool)
	SetViewSettings(viewID string, settings domain.ViewSettings) bool
}

// Notifier receives user-visible mutation outcomes.
type Notifier interface {
	Emit(ctx context.Context, event string, data any)
}

// Failure is the payload of EventRolledBack.
type Failure struct {
	ViewID string `json:"viewId"`
	Error  string `json:"error"`
}

// Synchronizer applies settings patches locally before the remote write
// completes. Only the latest mutation per view may commit or roll back;
// responses to older ones are discarded.
type Synchronizer struct {
	store     Store
	persister domain.SettingsPersister
	notifier  Notifier
	log       zerolog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	latest  map[string]uint64
	pending map[string]int // unresolved mutations per view
	wg      sync.WaitGroup
}

// New creates a Synchronizer. notifier may be nil. A zero timeout leaves
// remote writes unbounded.
func New(store Store, persister domain.SettingsPersister, notifier Notifier, timeout time.Duration, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:     store,
		persister: persister,
		notifier:  notifier,
		timeout:   timeout,
		log:       log.With().Str("component", "viewsync").Logger(),
		latest:    make(map[string]uint64),
		pending:   make(map[string]int),
	}
}

// Apply writes patch over the view's current settings immediately and
// persists it in the background. The returned Mutation reports the
// outcome. Store subscribers must not call Apply synchronously.
func (s *Synchronizer) Apply(ctx context.Context, viewID string, patch domain.SettingsPatch) (*Mutation, error) {
	s.mu.Lock()
	view, ok := s.store.View(viewID)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("view %s: %w", viewID, domain.ErrNotFound)
	}
	snapshot := view.Settings.Clone()
	s.latest[viewID]++
	m := newMutation(viewID, s.latest[viewID], snapshot)
	m.unconfirmedBase = s.pending[viewID] > 0
	s.pending[viewID]++
	s.store.SetViewSettings(viewID, patch.Apply(snapshot))
	m.set(StateApplying, nil)
	s.mu.Unlock()

	s.log.Debug().Str("view", viewID).Uint64("seq", m.Seq).Msg("optimistic settings applied")

	s.wg.Add(1)
	go s.persist(context.WithoutCancel(ctx), m, patch)
	return m, nil
}

func (s *Synchronizer) persist(ctx context.Context, m *Mutation, patch domain.SettingsPatch) {
	defer s.wg.Done()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	canonical, err := s.persister.PersistViewSettings(ctx, m.ViewID, patch)

	// Resolution and the latest check happen under one lock so a newer
	// Apply cannot slip in between them.
	s.mu.Lock()
	if s.pending[m.ViewID]--; s.pending[m.ViewID] == 0 {
		delete(s.pending, m.ViewID)
	}
	if s.latest[m.ViewID] != m.Seq {
		s.mu.Unlock()
		s.log.Debug().Str("view", m.ViewID).Uint64("seq", m.Seq).Msg("stale settings response discarded")
		m.set(StateSuperseded, err)
		return
	}
	if err == nil && canonical == nil {
		err = &domain.InvariantViolation{What: "settings persister returned no settings"}
	}
	if err != nil {
		s.store.SetViewSettings(m.ViewID, m.Snapshot())
		s.mu.Unlock()

		s.log.Warn().Err(err).Str("view", m.ViewID).Str("kind", string(domain.Classify(err))).Msg("settings update rolled back")
		if m.unconfirmedBase {
			// The snapshot holds an earlier mutation that was still in
			// flight; the next fetch of the view reconciles with the server.
			s.log.Warn().Str("view", m.ViewID).Uint64("seq", m.Seq).Msg("rolled back onto unconfirmed settings")
		}
		if s.notifier != nil {
			s.notifier.Emit(ctx, EventRolledBack, Failure{ViewID: m.ViewID, Error: err.Error()})
		}
		m.set(StateRolledBack, err)
		return
	}
	s.store.SetViewSettings(m.ViewID, canonical.Clone())
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Emit(ctx, EventCommitted, m.ViewID)
	}
	m.set(StateCommitted, nil)
}

// Wait blocks until every in-flight mutation has resolved or ctx is done.
func (s *Synchronizer) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
