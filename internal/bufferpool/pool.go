package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

var (
	DefaultCapacity = 50

	ErrBufferPoolFull = errors.New("bufferpool: no evictable page (all dirty under live transactions)")
	ErrNoResolver     = errors.New("bufferpool: no file resolver configured")
)

type frame struct {
	pid  storage.PageID
	file DBFile
	page Page
	pin  int32

	// stale: committed content that could not be written yet. It stays
	// dirty until a flush succeeds, whatever later writers do.
	stale bool
}

// Pool caches at most capacity pages and is the only way to reach page
// content. Every GetPage first takes a page lock for the transaction; locks
// are held until TransactionComplete.
//
// Eviction is NO-STEAL: a page dirtied by a transaction that still holds
// locks is never evicted, so abort can always roll back in memory. Pinned
// pages (fetched and not yet released with Unpin) are not evicted either.
// A clean page may be evicted while locked; it is reloaded on the next
// fetch.
type Pool struct {
	locks    *lock.Manager
	resolver FileResolver

	mu     sync.Mutex
	frames []*frame               // len == capacity, nil == free slot
	table  map[storage.PageID]int // pid -> frame index
	repl   *clockReplacer
}

func NewPool(capacity int, locks *lock.Manager, resolver FileResolver) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if locks == nil {
		locks = lock.NewManager(lock.DefaultTimeout)
	}
	return &Pool{
		locks:    locks,
		resolver: resolver,
		frames:   make([]*frame, capacity),
		table:    make(map[storage.PageID]int),
		repl:     newClockReplacer(capacity),
	}
}

func (p *Pool) Locks() *lock.Manager { return p.locks }
func (p *Pool) Capacity() int        { return len(p.frames) }

// GetPage locks pid for tid (Shared for ReadOnly, Exclusive for ReadWrite),
// then returns the cached page pinned, loading it from file on a miss.
// Every successful GetPage must be paired with Unpin.
func (p *Pool) GetPage(tid txn.ID, file DBFile, pid storage.PageID, perm Perm) (Page, error) {
	mode := lock.Shared
	if perm == ReadWrite {
		mode = lock.Exclusive
	}
	if err := p.locks.Acquire(tid, pid, mode); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 1) HIT
	if idx, ok := p.table[pid]; ok {
		if f := p.frames[idx]; f != nil {
			f.pin++
			p.repl.touch(idx)
			return f.page, nil
		}
		// Inconsistent mapping -> cleanup.
		delete(p.table, pid)
	}

	// 2) Free slot, evicting if needed
	idx, err := p.freeFrame()
	if err != nil {
		return nil, err
	}

	page, err := file.ReadPage(pid)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: load %s: %w", pid, err)
	}

	p.frames[idx] = &frame{pid: pid, file: file, page: page, pin: 1}
	p.table[pid] = idx
	p.repl.touch(idx)
	return page, nil
}

// Unpin releases one GetPage of pid. Unknown or unpinned pages are ignored.
func (p *Pool) Unpin(pid storage.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.table[pid]
	if !ok || p.frames[idx] == nil {
		return
	}
	if f := p.frames[idx]; f.pin > 0 {
		f.pin--
	}
}

// Pinned reports the pin count of a cached page.
func (p *Pool) Pinned(pid storage.PageID) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.table[pid]
	if !ok || p.frames[idx] == nil {
		return 0
	}
	return int(p.frames[idx].pin)
}

// freeFrame returns an empty frame index. Caller holds p.mu.
func (p *Pool) freeFrame() (int, error) {
	for i, f := range p.frames {
		if f == nil {
			return i, nil
		}
	}

	victimIdx, ok := p.repl.evict(p.evictable)
	if !ok {
		return -1, ErrBufferPoolFull
	}
	victim := p.frames[victimIdx]

	if _, dirty := victim.page.IsDirty(); dirty {
		if err := p.flushFrame(victim); err != nil {
			// Keep the victim cached.
			p.repl.touch(victimIdx)
			return -1, err
		}
	}

	slog.Debug("bufferpool: evict", "page", victim.pid)
	delete(p.table, victim.pid)
	p.frames[victimIdx] = nil
	return victimIdx, nil
}

// evictable: unpinned, and not dirtied by a live transaction.
func (p *Pool) evictable(idx int) bool {
	f := p.frames[idx]
	if f == nil || f.pin > 0 {
		return false
	}
	tid, dirty := f.page.IsDirty()
	if !dirty {
		return true
	}
	return !p.locks.Active(tid)
}

// flushFrame writes a dirty page and makes its content the new baseline.
// Caller holds p.mu.
func (p *Pool) flushFrame(f *frame) error {
	if _, dirty := f.page.IsDirty(); !dirty {
		return nil
	}
	if err := f.file.WritePage(f.page); err != nil {
		return fmt.Errorf("bufferpool: flush %s: %w", f.pid, err)
	}
	f.stale = false
	f.page.MarkDirty(false, txn.None)
	return f.page.SetBeforeImage()
}

// FlushPage writes pid to disk if it is cached and dirty.
func (p *Pool) FlushPage(pid storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.table[pid]
	if !ok || p.frames[idx] == nil {
		return nil
	}
	return p.flushFrame(p.frames[idx])
}

// FlushAllPages writes every dirty page, including those of running
// transactions. Meant for shutdown and tests.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f == nil {
			continue
		}
		if err := p.flushFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// FlushPages writes every page dirtied by tid.
func (p *Pool) FlushPages(tid txn.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, f := range p.dirtiedBy(tid) {
		if err := p.flushFrame(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DiscardPage drops pid from the cache without writing it.
func (p *Pool) DiscardPage(pid storage.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.table[pid]
	if !ok {
		return
	}
	delete(p.table, pid)
	p.frames[idx] = nil
	p.repl.remove(idx)
}

// dirtiedBy lists frames whose page was last dirtied by tid. Caller holds p.mu.
func (p *Pool) dirtiedBy(tid txn.ID) []*frame {
	var out []*frame
	for _, f := range p.frames {
		if f == nil {
			continue
		}
		if owner, dirty := f.page.IsDirty(); dirty && owner == tid {
			out = append(out, f)
		}
	}
	return out
}

// TransactionComplete ends tid. On commit every page it dirtied is flushed;
// on abort each such page is restored to its before-image in memory. Either
// way all of tid's locks are released, even when a flush fails.
//
// A page whose commit flush fails keeps the committed content as its
// before-image and stays dirty, so a later abort cannot roll it back past
// the commit and eviction retries the write.
func (p *Pool) TransactionComplete(tid txn.ID, commit bool) error {
	var errs []error

	p.mu.Lock()
	dirty := p.dirtiedBy(tid)
	for _, f := range dirty {
		if commit {
			if err := p.flushFrame(f); err != nil {
				errs = append(errs, err)
				f.stale = true
				if err := f.page.SetBeforeImage(); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		if err := f.page.Rollback(); err != nil {
			errs = append(errs, err)
			continue
		}
		if f.stale {
			f.page.MarkDirty(true, txn.None)
		}
	}
	p.mu.Unlock()

	released := p.locks.ReleaseAll(tid)
	slog.Debug("bufferpool: transaction complete",
		"txn", tid, "commit", commit, "dirty_pages", len(dirty), "locks_released", len(released))

	return errors.Join(errs...)
}

// InsertRow adds row to table on behalf of tid.
func (p *Pool) InsertRow(tid txn.ID, table storage.TableID, row *record.Row) error {
	if p.resolver == nil {
		return ErrNoResolver
	}
	file, err := p.resolver.DBFile(table)
	if err != nil {
		return err
	}
	pages, err := file.InsertRow(tid, row)
	if err != nil {
		return err
	}
	for _, pg := range pages {
		pg.MarkDirty(true, tid)
	}
	return nil
}

// DeleteRow removes row (located by its RID) on behalf of tid.
func (p *Pool) DeleteRow(tid txn.ID, row *record.Row) error {
	if p.resolver == nil {
		return ErrNoResolver
	}
	if row == nil || row.RID == nil {
		return fmt.Errorf("%w: row has no location", storage.ErrRowNotFound)
	}
	file, err := p.resolver.DBFile(row.RID.Page.Table)
	if err != nil {
		return err
	}
	pages, err := file.DeleteRow(tid, row)
	if err != nil {
		return err
	}
	for _, pg := range pages {
		pg.MarkDirty(true, tid)
	}
	return nil
}

// HoldsLock reports whether tid holds a lock on pid.
func (p *Pool) HoldsLock(tid txn.ID, pid storage.PageID) bool {
	return p.locks.HoldsLock(tid, pid)
}

// Cached reports whether pid is currently in the pool.
func (p *Pool) Cached(pid storage.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.table[pid]
	return ok
}

// Len is the number of cached pages.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}
