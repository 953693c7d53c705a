package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// inflightGuard: one background load per data source id
// ─────────────────────────────────────────────────────────────

// inflightGuard ensures only one refresh or prefetch of a given data
// source runs at a time, and lets shutdown wait for all of them.
type inflightGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks id as running. It returns false when id already is.
func (g *inflightGuard) TryLock(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases id. Must follow a successful TryLock.
func (g *inflightGuard) Unlock(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, id)
	g.wg.Done()
}

// Running reports whether id holds the guard.
func (g *inflightGuard) Running(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[id]
	return ok
}

// WaitAll blocks until every holder has unlocked or ctx is cancelled.
func (g *inflightGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
