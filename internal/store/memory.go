package store

import (
	"context"
	"sync"
	"time"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/task"
)

// Memory is an in-memory escrow.Store. One big mutex serializes units of
// work, which gives the same isolation the Postgres store gets from row
// locks. Used by tests and local development.
type Memory struct {
	mu        sync.Mutex
	accounts  map[string]escrow.Account
	tasks     map[string]task.Task
	taskOrder []string
	entries   map[string]ledger.Entry
	entryIDs  []string
}

// NewMemory returns an empty store with the well-known system accounts
// seeded at zero.
func NewMemory() *Memory {
	m := &Memory{
		accounts: make(map[string]escrow.Account),
		tasks:    make(map[string]task.Task),
		entries:  make(map[string]ledger.Entry),
	}
	now := time.Now()
	m.accounts[escrow.EscrowAccountID] = escrow.Account{ID: escrow.EscrowAccountID, CreatedAt: now}
	m.accounts[escrow.SystemAccountID] = escrow.Account{ID: escrow.SystemAccountID, CreatedAt: now}
	return m
}

type memorySnapshot struct {
	accounts  map[string]escrow.Account
	tasks     map[string]task.Task
	taskOrder []string
	entries   map[string]ledger.Entry
	entryIDs  []string
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		accounts:  make(map[string]escrow.Account, len(m.accounts)),
		tasks:     make(map[string]task.Task, len(m.tasks)),
		taskOrder: append([]string(nil), m.taskOrder...),
		entries:   make(map[string]ledger.Entry, len(m.entries)),
		entryIDs:  append([]string(nil), m.entryIDs...),
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.tasks {
		s.tasks[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.tasks = s.tasks
	m.taskOrder = s.taskOrder
	m.entries = s.entries
	m.entryIDs = s.entryIDs
}

// InTx runs fn under the store lock; any error rolls all writes back.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx escrow.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) Task(ctx context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) ListTasks(ctx context.Context, limit int) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for i := len(m.taskOrder) - 1; i >= 0; i-- {
		out = append(out, m.tasks[m.taskOrder[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) OpenTasksBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == task.StatusOpen && t.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) CompletionRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == task.StatusCompletionRequested &&
			t.CompletionRequestedAt != nil && !t.CompletionRequestedAt.After(cutoff) &&
			t.FinalPaidAt == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) PendingEntriesBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.entryIDs {
		e := m.entries[id]
		if e.Status == ledger.StatusPending &&
			(e.Type == ledger.TypeDeposit || e.Type == ledger.TypeWithdraw) &&
			!e.CreatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) Account(ctx context.Context, id string) (*escrow.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) EntriesFor(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entriesFor(accountID, limit), nil
}

func (m *Memory) entriesFor(accountID string, limit int) []ledger.Entry {
	matches := func(e ledger.Entry) bool {
		return (e.FromAccount != nil && *e.FromAccount == accountID) ||
			(e.ToAccount != nil && *e.ToAccount == accountID)
	}
	var out []ledger.Entry
	if limit <= 0 {
		for _, id := range m.entryIDs {
			if e := m.entries[id]; matches(e) {
				out = append(out, e)
			}
		}
		return out
	}
	for i := len(m.entryIDs) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.entries[m.entryIDs[i]]; matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// memoryTx operates on the store directly; InTx holds the lock and restores
// the snapshot on error.
type memoryTx struct {
	m *Memory
}

func (tx *memoryTx) TaskForUpdate(ctx context.Context, id string) (*task.Task, error) {
	t, ok := tx.m.tasks[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &t, nil
}

func (tx *memoryTx) InsertTask(ctx context.Context, t *task.Task) error {
	tx.m.tasks[t.ID] = *t
	tx.m.taskOrder = append(tx.m.taskOrder, t.ID)
	return nil
}

func (tx *memoryTx) UpdateTask(ctx context.Context, t *task.Task) error {
	if _, ok := tx.m.tasks[t.ID]; !ok {
		return escrow.ErrNotFound
	}
	tx.m.tasks[t.ID] = *t
	return nil
}

func (tx *memoryTx) AccountForUpdate(ctx context.Context, id string) (*escrow.Account, error) {
	a, ok := tx.m.accounts[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &a, nil
}

func (tx *memoryTx) InsertAccount(ctx context.Context, a *escrow.Account) error {
	tx.m.accounts[a.ID] = *a
	return nil
}

func (tx *memoryTx) AddBalance(ctx context.Context, id string, delta int64) error {
	a, ok := tx.m.accounts[id]
	if !ok {
		return escrow.ErrNotFound
	}
	a.Balance += delta
	tx.m.accounts[id] = a
	return nil
}

func (tx *memoryTx) SetBalance(ctx context.Context, id string, balance int64) error {
	a, ok := tx.m.accounts[id]
	if !ok {
		return escrow.ErrNotFound
	}
	a.Balance = balance
	tx.m.accounts[id] = a
	return nil
}

func (tx *memoryTx) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	tx.m.entries[e.ID] = *e
	tx.m.entryIDs = append(tx.m.entryIDs, e.ID)
	return nil
}

func (tx *memoryTx) EntryForUpdate(ctx context.Context, id string) (*ledger.Entry, error) {
	e, ok := tx.m.entries[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &e, nil
}

func (tx *memoryTx) CompleteEntry(ctx context.Context, id string, at time.Time) error {
	e, ok := tx.m.entries[id]
	if !ok {
		return escrow.ErrNotFound
	}
	if e.Status != ledger.StatusPending {
		return task.ErrInvalidState
	}
	e.Status = ledger.StatusCompleted
	e.CompletedAt = &at
	tx.m.entries[id] = e
	return nil
}

func (tx *memoryTx) EntriesFor(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	return tx.m.entriesFor(accountID, 0), nil
}
