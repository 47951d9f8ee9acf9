// Package store provides the two persistence backends for game records:
// an in-process memory store for tests and single-node play, and a
// Postgres store for real deployments. Both satisfy game.Store with the
// same re-validate-then-commit discipline.
package store

import (
	"context"
	"sort"
	"sync"

	"ironrails/internal/game"
)

// Memory keeps every record in process, one mutex per game. Update applies
// the mutation to a deep copy and swaps it in only on success, so a
// rejected action never leaves partial writes behind.
type Memory struct {
	mu    sync.Mutex
	games map[string]*memGame
}

type memGame struct {
	mu       sync.Mutex
	rec      *game.Record
	watchers map[chan *game.Record]struct{}
}

func NewMemory() *Memory {
	return &Memory{games: make(map[string]*memGame)}
}

func (m *Memory) Create(_ context.Context, r *game.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[r.ID]; ok {
		return game.ErrAllocationConflict
	}
	m.games[r.ID] = &memGame{
		rec:      r.Clone(),
		watchers: make(map[chan *game.Record]struct{}),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*game.Record, error) {
	g, ok := m.game(id)
	if !ok {
		return nil, game.ErrNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, apply func(*game.Record) error) (*game.Record, error) {
	g, ok := m.game(id)
	if !ok {
		return nil, game.ErrNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	next := g.rec.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	g.rec = next
	snapshot := next.Clone()
	for ch := range g.watchers {
		sendLatest(ch, snapshot)
	}
	return snapshot, nil
}

func (m *Memory) ListLobby(_ context.Context) ([]*game.Record, error) {
	m.mu.Lock()
	entries := make([]*memGame, 0, len(m.games))
	for _, g := range m.games {
		entries = append(entries, g)
	}
	m.mu.Unlock()

	var out []*game.Record
	for _, g := range entries {
		g.mu.Lock()
		if g.rec.Phase == game.PhaseLobby {
			out = append(out, g.rec.Clone())
		}
		g.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch registers a subscriber that receives the current record immediately
// and the latest committed record after every change. Delivery is
// latest-wins: a consumer that falls behind skips intermediate states.
func (m *Memory) Watch(ctx context.Context, id string) (<-chan *game.Record, error) {
	g, ok := m.game(id)
	if !ok {
		return nil, game.ErrNotFound
	}
	ch := make(chan *game.Record, 1)
	g.mu.Lock()
	ch <- g.rec.Clone()
	g.watchers[ch] = struct{}{}
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		delete(g.watchers, ch)
		g.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) game(id string) (*memGame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	return g, ok
}

func sendLatest(ch chan *game.Record, rec *game.Record) {
	for {
		select {
		case ch <- rec:
			return
		default:
		}
		// Buffer full: evict the stale snapshot and retry.
		select {
		case <-ch:
		default:
		}
	}
}
