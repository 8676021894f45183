// Package disk is the file-backed disk manager the buffer pool manager
// reads and writes through. It treats the backing file as a flat array
// of fixed-size pages addressed by page.ID.
package disk

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pagestore/pagestore/pkg/dberrors"
	"github.com/pagestore/pagestore/storage/page"
)

// Manager reads and writes fixed-size pages of a single backing file.
// Throughput can be capped via rateBytesPerSec, backed by
// golang.org/x/time/rate.
type Manager struct {
	mu sync.Mutex

	file     *os.File
	pageSize int
	nextID   page.ID

	limiter *rate.Limiter
}

// New opens (creating if necessary) path as the backing store for pages of
// pageSize bytes. rateBytesPerSec <= 0 disables throttling.
func New(path string, pageSize int, rateBytesPerSec int64) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	nextID := page.ID(info.Size() / int64(pageSize))
	if nextID == 0 {
		// Page 0 is reserved as page.HeaderPageID; never hand it out
		// through AllocatePage.
		nextID = 1
	}
	m := &Manager{
		file:     f,
		pageSize: pageSize,
		nextID:   nextID,
	}
	if rateBytesPerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), pageSize)
	}
	return m, nil
}

func (m *Manager) PageSize() int { return m.pageSize }

func (m *Manager) offset(id page.ID) int64 { return int64(id) * int64(m.pageSize) }

func (m *Manager) throttle(n int) {
	if m.limiter == nil {
		return
	}
	// WaitN's burst must cover n; we size the limiter's burst to pageSize
	// above and never read/write more than one page at a time.
	_ = m.limiter.WaitN(context.Background(), n)
}

// ReadPage fills buf (must be len == PageSize()) with the contents of id.
// Reading an id that was never written returns a zero-filled buffer.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != m.pageSize {
		return dberrors.ErrShortReadOrWrite
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.file.ReadAt(buf, m.offset(id))
	if err != nil {
		if n == 0 {
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("%w: page %d: %v", dberrors.ErrIO, id, err)
	}
	m.throttle(n)
	return nil
}

// WritePage persists buf (must be len == PageSize()) at id's offset.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	if len(buf) != m.pageSize {
		return dberrors.ErrShortReadOrWrite
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.file.WriteAt(buf, m.offset(id))
	if err != nil {
		return fmt.Errorf("%w: page %d: %v", dberrors.ErrIO, id, err)
	}
	m.throttle(n)
	return nil
}

// AllocatePage reserves the next page id. The reservation is logical only;
// no bytes are written until the first WritePage.
func (m *Manager) AllocatePage() page.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// DeallocatePage is a no-op: there is no on-disk page free list, so a
// deallocated id is simply never reused.
func (m *Manager) DeallocatePage(page.ID) {}

// Sync flushes the backing file to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", dberrors.ErrIO, err)
	}
	return nil
}

// Close syncs and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("%w: sync on close: %v", dberrors.ErrIO, err)
	}
	return m.file.Close()
}
