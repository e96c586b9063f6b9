package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/store"
)

// Manager runs searches on a bounded worker pool and keeps them
// addressable by search id.
//
// Thread-safety: Manager is safe for concurrent use.
type Manager struct {
	st       *store.Store
	pool     *ants.Pool
	ids      IDGenerator
	defaults Options

	mu    sync.RWMutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewManager creates a manager running at most workers searches at once.
// A nil ids means UUIDv7Generator. defaults are the options of every
// submitted search.
func NewManager(st *store.Store, workers int, ids IDGenerator, defaults Options) (*Manager, error) {
	if workers <= 0 {
		workers = 1
	}
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		slog.Error("search worker panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Manager{
		st:       st,
		pool:     pool,
		ids:      ids,
		defaults: defaults,
		tasks:    make(map[string]*Task),
	}, nil
}

// Submit queues a search and returns its id. filters replace the default
// filters when given. Submit blocks while every worker is busy.
func (m *Manager) Submit(ctx context.Context, matrix ir.Matrix, filters ...Filter) (string, error) {
	opts := m.defaults
	if len(filters) > 0 {
		opts.Filters = filters
	}
	id := m.ids.Generate()
	task := NewTask(id, m.st, matrix, opts)

	m.mu.Lock()
	m.tasks[id] = task
	m.mu.Unlock()

	m.wg.Add(1)
	err := m.pool.Submit(func() {
		defer m.wg.Done()
		if err := task.Run(ctx); err != nil && !IsCancelled(err) {
			slog.Debug("search ended with error", "search_id", id, "error", err)
		}
	})
	if err != nil {
		m.wg.Done()
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
		return "", fmt.Errorf("submit search: %w", err)
	}
	return id, nil
}

// Get returns the task of a search.
func (m *Manager) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("search %s: %w", id, ErrUnknownSearch)
	}
	return t, nil
}

// Cancel requests cancellation of a search.
func (m *Manager) Cancel(id string) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	t.Cancel()
	return nil
}

// Percent returns the progress of a search.
func (m *Manager) Percent(id string) (int, error) {
	t, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return t.Percent(), nil
}

// Wait blocks until a search finishes or ctx is done, and returns its task.
func (m *Manager) Wait(ctx context.Context, id string) (*Task, error) {
	t, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-t.Done():
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Results returns the row sequence of a finished search.
func (m *Manager) Results(id string) (*Results, error) {
	t, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if t.State() != StateDone {
		return nil, fmt.Errorf("search %s is %s", id, t.State())
	}
	return NewResults(m.st, id, m.defaults.PageSize), nil
}

// Remove cancels a search if it is running, waits for it, and discards it
// together with its durable rows.
func (m *Manager) Remove(ctx context.Context, id string) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	t.Cancel()
	if t.State() != StatePending {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := m.st.DeleteSearch(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	return nil
}

// RemoveMatch discards one durable row of a finished search.
func (m *Manager) RemoveMatch(ctx context.Context, id string, match int64) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	return m.st.DeleteResult(ctx, id, match)
}

// Close cancels running searches, waits for the workers and releases the
// pool.
func (m *Manager) Close() {
	m.mu.RLock()
	for _, t := range m.tasks {
		t.Cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
	m.pool.Release()
}
