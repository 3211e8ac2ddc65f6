package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

// DefaultTimeout bounds a single lock wait.
const DefaultTimeout = 2 * time.Second

var (
	// ErrTransactionAborted is wrapped by every error that obliges the caller
	// to abort the requesting transaction.
	ErrTransactionAborted = errors.New("lock: transaction aborted")
	ErrDeadlock           = errors.New("lock: deadlock detected")
	ErrLockTimeout        = errors.New("lock: wait timed out")
)

type Mode uint8

const (
	Shared Mode = iota + 1
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// Manager is a page-granularity lock table for strict two-phase locking.
// Locks are only ever released all at once by ReleaseAll.
type Manager struct {
	timeout time.Duration

	mu    sync.Mutex
	pages map[storage.PageID]map[txn.ID]Mode // page -> holders
	held  map[txn.ID]map[storage.PageID]Mode // txn  -> pages
	graph *waitGraph
	// wake is closed (and replaced) whenever locks are released.
	wake chan struct{}
}

// NewManager builds a lock table. timeout <= 0 disables the bounded wait and
// leaves deadlock handling to cycle detection alone.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		pages:   make(map[storage.PageID]map[txn.ID]Mode),
		held:    make(map[txn.ID]map[storage.PageID]Mode),
		graph:   newWaitGraph(),
		wake:    make(chan struct{}),
	}
}

// Acquire blocks until tid holds pid in at least the requested mode.
// A Shared holder is upgraded to Exclusive once it is the only holder.
// If waiting would close a waits-for cycle, or the wait exceeds the
// timeout, it returns an error wrapping ErrTransactionAborted.
func (m *Manager) Acquire(tid txn.ID, pid storage.PageID, mode Mode) error {
	var deadline <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		m.mu.Lock()
		blockers := m.blockers(tid, pid, mode)
		if len(blockers) == 0 {
			m.grant(tid, pid, mode)
			m.graph.clear(tid)
			m.mu.Unlock()
			return nil
		}

		m.graph.set(tid, blockers)
		if m.graph.reaches(blockers, tid) {
			m.graph.clear(tid)
			m.mu.Unlock()
			slog.Info("lock: deadlock, aborting requester",
				"txn", tid, "page", pid, "mode", mode, "holders", blockers)
			return fmt.Errorf("%w: %w: %s requesting %s on %s", ErrTransactionAborted, ErrDeadlock, tid, mode, pid)
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-wake:
		case <-deadline:
			m.mu.Lock()
			m.graph.clear(tid)
			m.mu.Unlock()
			slog.Info("lock: wait timed out", "txn", tid, "page", pid, "mode", mode, "timeout", m.timeout)
			return fmt.Errorf("%w: %w: %s requesting %s on %s", ErrTransactionAborted, ErrLockTimeout, tid, mode, pid)
		}
	}
}

// blockers lists the other transactions whose locks conflict with the
// request. Caller holds m.mu.
func (m *Manager) blockers(tid txn.ID, pid storage.PageID, mode Mode) []txn.ID {
	var out []txn.ID
	for holder, held := range m.pages[pid] {
		if holder == tid {
			continue
		}
		if mode == Exclusive || held == Exclusive {
			out = append(out, holder)
		}
	}
	return out
}

func (m *Manager) grant(tid txn.ID, pid storage.PageID, mode Mode) {
	holders, ok := m.pages[pid]
	if !ok {
		holders = make(map[txn.ID]Mode)
		m.pages[pid] = holders
	}
	if holders[tid] == Exclusive {
		return
	}
	holders[tid] = mode

	pages, ok := m.held[tid]
	if !ok {
		pages = make(map[storage.PageID]Mode)
		m.held[tid] = pages
	}
	pages[pid] = mode
}

// ReleaseAll drops every lock held by tid and wakes all waiters. It returns
// the pages that were locked, in ascending order.
func (m *Manager) ReleaseAll(tid txn.ID) []storage.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages := m.held[tid]
	out := make([]storage.PageID, 0, len(pages))
	for pid := range pages {
		out = append(out, pid)
		holders := m.pages[pid]
		delete(holders, tid)
		if len(holders) == 0 {
			delete(m.pages, pid)
		}
	}
	delete(m.held, tid)
	m.graph.remove(tid)

	close(m.wake)
	m.wake = make(chan struct{})

	sortPageIDs(out)
	return out
}

// HoldsLock reports whether tid holds any lock on pid.
func (m *Manager) HoldsLock(tid txn.ID, pid storage.PageID) bool {
	_, ok := m.LockMode(tid, pid)
	return ok
}

// LockMode returns the mode tid holds on pid.
func (m *Manager) LockMode(tid txn.ID, pid storage.PageID) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.held[tid][pid]
	return mode, ok
}

// Active reports whether tid holds at least one lock.
func (m *Manager) Active(tid txn.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held[tid]) > 0
}

// PagesHeld lists the pages tid has locked, in ascending order.
func (m *Manager) PagesHeld(tid txn.ID) []storage.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.PageID, 0, len(m.held[tid]))
	for pid := range m.held[tid] {
		out = append(out, pid)
	}
	sortPageIDs(out)
	return out
}

// Waiting lists transactions currently blocked in Acquire.
func (m *Manager) Waiting() []txn.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.waiting()
}

func sortPageIDs(ids []storage.PageID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Table != ids[j].Table {
			return ids[i].Table < ids[j].Table
		}
		return ids[i].PageNo < ids[j].PageNo
	})
}
