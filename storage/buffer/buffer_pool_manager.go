// Package buffer implements a fixed-capacity buffer pool manager: a
// cache of disk pages, backed by a free list, the extendible hash table
// as its page table, and the LRU-K replacer for eviction.
package buffer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/pagestore/pagestore/internal/common"
	"github.com/pagestore/pagestore/pkg/dberrors"
	"github.com/pagestore/pagestore/pkg/telemetry"
	"github.com/pagestore/pagestore/storage/disk"
	"github.com/pagestore/pagestore/storage/hashindex"
	"github.com/pagestore/pagestore/storage/page"
	"github.com/pagestore/pagestore/storage/replacer"
	"github.com/pagestore/pagestore/storage/wal"
	"github.com/pagestore/pagestore/txn"

	"sync"
)

func hashPageID(id page.ID) uint64 { return uint64(id) }

// allZero reports whether buf holds only zero bytes, the signature of a
// page that was never written (disk.Manager.ReadPage zero-fills reads past
// the current end of file). Such a page has no checksum to verify yet.
func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Manager is the buffer pool manager. A single mutex guards all of its
// state rather than attempting fine-grained per-frame locking.
type Manager struct {
	mu sync.Mutex

	disk      *disk.Manager
	replacer  *replacer.LRUK
	pageTable *hashindex.Table[page.ID, int]
	wal       *wal.Manager // optional; nil disables write-ahead logging

	frames   []*page.Page
	freeList []int

	log *zap.Logger
	tel *telemetry.Telemetry

	hits         metric.Int64Counter
	misses       metric.Int64Counter
	evictions    metric.Int64Counter
	dirtyFlushes metric.Int64Counter

	activeTxn *txn.Transaction // tags WAL records for the writer currently inside a txn scope
}

// SetWAL attaches a log manager. Once set, every page marked dirty via
// UnpinPage gets an Update record, and a dirty page flush first syncs the
// log (LSN-before-flush ordering).
func (m *Manager) SetWAL(w *wal.Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wal = w
}

// BeginTxnScope tags every WAL record appended by a dirty UnpinPage with
// tx's id, until EndTxnScope clears it. Callers serialize their own writes
// (the B+-tree holds its tree-wide latch for the whole call), so scopes
// from different writers never interleave in practice. tx may be nil.
func (m *Manager) BeginTxnScope(tx *txn.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTxn = tx
}

// EndTxnScope clears the active transaction tag.
func (m *Manager) EndTxnScope() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTxn = nil
}

// New creates a pool of poolSize frames, each pageSize bytes, reading and
// writing through d, evicting via an LRU-K(k) policy. tel is optional;
// a nil tel records no spans or metrics.
func New(poolSize, pageSize, k int, d *disk.Manager, log *zap.Logger, tel *telemetry.Telemetry) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	m := &Manager{
		disk:      d,
		replacer:  replacer.New(poolSize, k, log),
		pageTable: hashindex.New[page.ID, int](4, hashPageID),
		frames:    make([]*page.Page, poolSize),
		freeList:  make([]int, poolSize),
		log:       log,
		tel:       tel,
	}
	m.hits, _ = tel.Meter.Int64Counter("pagestore.buffer_pool.hits")
	m.misses, _ = tel.Meter.Int64Counter("pagestore.buffer_pool.misses")
	m.evictions, _ = tel.Meter.Int64Counter("pagestore.buffer_pool.evictions")
	m.dirtyFlushes, _ = tel.Meter.Int64Counter("pagestore.buffer_pool.dirty_flushes")
	for i := 0; i < poolSize; i++ {
		m.frames[i] = page.New(pageSize)
		m.freeList[i] = poolSize - 1 - i
	}
	return m
}

// grabFrame returns a frame index ready to host a new page: either from the
// free list, or by evicting an LRU-K victim and flushing it if dirty.
func (m *Manager) grabFrame() (int, error) {
	if n := len(m.freeList); n > 0 {
		idx := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return idx, nil
	}

	idx, ok := m.replacer.Evict()
	if !ok {
		return 0, dberrors.ErrOutOfFrames
	}
	m.evictions.Add(context.Background(), 1)
	victim := m.frames[idx]
	if victim.IsDirty() {
		if m.wal != nil {
			if err := m.wal.Flush(); err != nil {
				return 0, fmt.Errorf("flushing wal before evicting page %d: %w", victim.ID(), err)
			}
		}
		victim.StampChecksum()
		if err := m.disk.WritePage(victim.ID(), victim.Data()); err != nil {
			return 0, fmt.Errorf("flushing evicted page %d: %w", victim.ID(), err)
		}
		m.dirtyFlushes.Add(context.Background(), 1)
	}
	m.pageTable.Remove(victim.ID())
	victim.Reset()
	return idx, nil
}

// FetchPage pins and returns the page identified by id, reading it from
// disk on a cache miss.
func (m *Manager) FetchPage(id page.ID) (*page.Page, error) {
	ctx, span := m.tel.Tracer.Start(context.Background(), "buffer.FetchPage")
	span.SetAttributes(attribute.Int64("page_id", int64(id)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.pageTable.Find(id); ok {
		m.hits.Add(ctx, 1)
		p := m.frames[idx]
		p.Pin()
		m.replacer.RecordAccess(idx)
		m.replacer.SetEvictable(idx, false)
		return p, nil
	}
	m.misses.Add(ctx, 1)

	idx, err := m.grabFrame()
	if err != nil {
		return nil, err
	}
	p := m.frames[idx]
	if err := m.disk.ReadPage(id, p.Data()); err != nil {
		m.freeList = append(m.freeList, idx)
		return nil, err
	}
	if !allZero(p.Data()) && !p.VerifyChecksum() {
		m.freeList = append(m.freeList, idx)
		return nil, dberrors.ErrChecksumMismatch
	}
	p.SetID(id)
	p.Pin()
	m.pageTable.Insert(id, idx)
	m.replacer.RecordAccess(idx)
	m.replacer.SetEvictable(idx, false)
	return p, nil
}

// NewPage allocates a fresh disk page, pins it, and returns it zero-filled.
func (m *Manager) NewPage() (*page.Page, error) {
	_, span := m.tel.Tracer.Start(context.Background(), "buffer.NewPage")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.grabFrame()
	if err != nil {
		return nil, err
	}
	id := m.disk.AllocatePage()
	p := m.frames[idx]
	p.SetID(id)
	p.Pin()
	m.pageTable.Insert(id, idx)
	m.replacer.RecordAccess(idx)
	m.replacer.SetEvictable(idx, false)
	m.log.Debug("new page", zap.Int64("page_id", int64(id)), zap.Int("frame", idx), zap.Int64("goroutine", common.GoID()))
	return p, nil
}

// UnpinPage decrements id's pin count, making its frame evictable once the
// count reaches zero. isDirty ORs into the page's dirty flag.
func (m *Manager) UnpinPage(id page.ID, isDirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable.Find(id)
	if !ok {
		return dberrors.ErrPageNotFound
	}
	p := m.frames[idx]
	m.log.Debug("unpin page", zap.Int64("page_id", int64(id)), zap.Bool("dirty", isDirty), zap.Int64("goroutine", common.GoID()))
	if isDirty {
		p.SetDirty(true)
		if m.wal != nil {
			rec := &wal.Record{Type: wal.RecordUpdate, PageID: id, Data: append([]byte(nil), p.Data()...)}
			if m.activeTxn != nil {
				rec.TxnID = m.activeTxn.ID()
			}
			if _, err := m.wal.Append(rec); err != nil {
				return fmt.Errorf("appending wal record for page %d: %w", id, err)
			}
		}
	}
	if !p.Unpin() {
		return dberrors.ErrDoubleUnpin
	}
	if p.PinCount() == 0 {
		m.replacer.SetEvictable(idx, true)
	}
	return nil
}

// FlushPage writes id's frame to disk if dirty, regardless of pin count.
func (m *Manager) FlushPage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable.Find(id)
	if !ok {
		return dberrors.ErrPageNotFound
	}
	p := m.frames[idx]
	if !p.IsDirty() {
		return nil
	}
	if m.wal != nil {
		if err := m.wal.Flush(); err != nil {
			return fmt.Errorf("flushing wal before page %d: %w", id, err)
		}
	}
	p.StampChecksum()
	if err := m.disk.WritePage(id, p.Data()); err != nil {
		return err
	}
	p.SetDirty(false)
	return nil
}

// FlushAll flushes every dirty frame currently resident in the pool.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wal != nil {
		if err := m.wal.Flush(); err != nil {
			return fmt.Errorf("flushing wal before flushing all pages: %w", err)
		}
	}
	var firstErr error
	for _, p := range m.frames {
		if p.ID() == page.InvalidID || !p.IsDirty() {
			continue
		}
		p.StampChecksum()
		if err := m.disk.WritePage(p.ID(), p.Data()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.SetDirty(false)
	}
	return firstErr
}

// DeletePage removes id from the pool entirely, refusing while it's pinned.
func (m *Manager) DeletePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable.Find(id)
	if !ok {
		return nil
	}
	p := m.frames[idx]
	if p.PinCount() > 0 {
		return dberrors.ErrPagePinned
	}
	m.pageTable.Remove(id)
	m.replacer.Remove(idx)
	m.disk.DeallocatePage(id)
	p.Reset()
	m.freeList = append(m.freeList, idx)
	return nil
}

// PageSize reports the size of each frame.
func (m *Manager) PageSize() int {
	if len(m.frames) == 0 {
		return 0
	}
	return len(m.frames[0].Data())
}
