// Package wal is a write-path-only log manager: it appends records and
// rolls segments, but drops recovery and log streaming (crash recovery
// and replication are out of scope here). The buffer pool manager
// treats it as an opaque durability sink: flush the log up to a page's
// LSN before flushing that page to disk.
package wal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagestore/pagestore/storage/page"
)

// LSN is a log sequence number: the byte offset of a record's start in
// the logical (cross-segment) log stream.
type LSN uint64

const InvalidLSN LSN = 0

type RecordType byte

const (
	RecordUpdate RecordType = iota + 1
	RecordNewPage
	RecordFreePage
	RecordCommit
	RecordAbort
)

// Record is a single write-ahead log entry. Data carries the new page
// bytes for RecordUpdate/RecordNewPage; it is empty otherwise.
type Record struct {
	LSN    LSN
	TxnID  uuid.UUID
	Type   RecordType
	PageID page.ID
	Data   []byte
}

func (r *Record) encode() []byte {
	buf := make([]byte, 8+16+1+8+4+len(r.Data))
	putU64(buf[0:8], uint64(r.LSN))
	copy(buf[8:24], r.TxnID[:])
	buf[24] = byte(r.Type)
	putU64(buf[25:33], uint64(r.PageID))
	putU32(buf[33:37], uint32(len(r.Data)))
	copy(buf[37:], r.Data)
	return buf
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Manager appends Records to a rolling sequence of segment files under
// dir, buffering writes and flushing them to disk on demand.
type Manager struct {
	mu sync.Mutex

	dir              string
	segmentSizeLimit int64

	file          *os.File
	segmentID     uint64
	segmentOffset int64

	buffer     bytes.Buffer
	bufferCap  int
	currentLSN LSN

	log *zap.Logger
}

// New opens (creating if necessary) dir as the log directory and opens
// segment 0, appending to it if it already exists. Later segments already
// in dir are not looked at, and LSNs start again from 0.
func New(dir string, bufferCap int, segmentSizeLimit int64, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating wal dir %s: %w", dir, err)
	}
	m := &Manager{dir: dir, bufferCap: bufferCap, segmentSizeLimit: segmentSizeLimit, log: log}
	if err := m.openSegment(0); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) segmentPath(id uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("wal_%05d.log", id))
}

func (m *Manager) openSegment(id uint64) error {
	f, err := os.OpenFile(m.segmentPath(id), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening wal segment %d: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	m.file = f
	m.segmentID = id
	m.segmentOffset = info.Size()
	return nil
}

func (m *Manager) rollSegment() error {
	if err := m.flushLocked(); err != nil {
		return err
	}
	if err := m.file.Close(); err != nil {
		return err
	}
	m.log.Info("rolling wal segment", zap.Uint64("from", m.segmentID), zap.Uint64("to", m.segmentID+1))
	return m.openSegment(m.segmentID + 1)
}

// Append assigns the record an LSN, buffers its encoding, and returns the
// assigned LSN. It is not guaranteed durable until Flush or the next
// automatic buffer-full flush.
func (m *Manager) Append(r *Record) (LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.LSN = m.currentLSN
	encoded := r.encode()
	size := int64(len(encoded))

	if m.buffer.Len()+len(encoded) > m.bufferCap {
		if err := m.flushLocked(); err != nil {
			return InvalidLSN, err
		}
	}
	if m.segmentOffset+int64(m.buffer.Len())+size > m.segmentSizeLimit {
		if err := m.rollSegment(); err != nil {
			return InvalidLSN, err
		}
	}
	m.buffer.Write(encoded)
	m.currentLSN += LSN(size)
	return r.LSN, nil
}

func (m *Manager) flushLocked() error {
	if m.buffer.Len() == 0 {
		return nil
	}
	n, err := m.file.Write(m.buffer.Bytes())
	if err != nil {
		return fmt.Errorf("flushing wal segment %d: %w", m.segmentID, err)
	}
	m.segmentOffset += int64(n)
	m.buffer.Reset()
	return nil
}

// Flush writes the buffer to the current segment and fsyncs it, making
// every record appended so far durable.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.flushLocked(); err != nil {
		return err
	}
	return m.file.Sync()
}

// Close flushes and closes the active segment.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.flushLocked(); err != nil {
		m.file.Close()
		return err
	}
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}

// CurrentLSN reports the LSN that will be assigned to the next record.
func (m *Manager) CurrentLSN() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLSN
}
