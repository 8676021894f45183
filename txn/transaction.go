// Package txn provides opaque transaction handles for write-path hooks:
// a caller starts one before a batch of inserts/deletes and commits or
// aborts it when done. The storage and index packages in this module
// don't themselves enforce isolation; a Transaction is a token threaded
// through for callers (and the WAL) to group operations by.
package txn

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle of a Transaction, trimmed to the single-node case.
type State int

const (
	StateRunning State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is an opaque handle identifying one logical unit of work.
type Transaction struct {
	mu    sync.Mutex
	id    uuid.UUID
	state State
}

func (tx *Transaction) ID() uuid.UUID {
	return tx.id
}

func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

func (tx *Transaction) setState(s State) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.state = s
}

// Manager hands out Transaction handles and tracks which ones are still
// running, trimmed to single-node bookkeeping with no cross-shard
// two-phase-commit voting.
type Manager struct {
	mu      sync.Mutex
	running map[uuid.UUID]*Transaction
}

func NewManager() *Manager {
	return &Manager{running: make(map[uuid.UUID]*Transaction)}
}

// Begin starts a new transaction and returns its handle.
func (m *Manager) Begin() *Transaction {
	tx := &Transaction{id: uuid.New(), state: StateRunning}
	m.mu.Lock()
	m.running[tx.id] = tx
	m.mu.Unlock()
	return tx
}

// Commit marks tx committed and stops tracking it as running.
func (m *Manager) Commit(tx *Transaction) {
	tx.setState(StateCommitted)
	m.mu.Lock()
	delete(m.running, tx.id)
	m.mu.Unlock()
}

// Abort marks tx aborted and stops tracking it as running.
func (m *Manager) Abort(tx *Transaction) {
	tx.setState(StateAborted)
	m.mu.Lock()
	delete(m.running, tx.id)
	m.mu.Unlock()
}

// RunningCount reports how many transactions are currently in flight.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}
