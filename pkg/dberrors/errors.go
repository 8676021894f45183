// Package dberrors collects the sentinel errors shared by the buffer pool,
// the extendible hash table, and the B+-tree index.
package dberrors

import "errors"

var (
	// Buffer pool.
	ErrOutOfFrames  = errors.New("buffer pool: no victim frame available, all frames pinned")
	ErrPageNotFound = errors.New("buffer pool: page not found")
	ErrPagePinned   = errors.New("buffer pool: page is pinned and cannot be deleted")
	ErrDoubleUnpin  = errors.New("buffer pool: page already has a pin count of zero")

	// LRU-K replacer.
	ErrInvalidFrame      = errors.New("lru-k: frame id out of range")
	ErrFrameNotEvictable = errors.New("lru-k: frame is not evictable")

	// B+-tree.
	ErrDuplicateKey     = errors.New("b+tree: key already exists")
	ErrCorruptPage      = errors.New("b+tree: page header is inconsistent with its declared type")
	ErrChecksumMismatch = errors.New("page: checksum mismatch, data corruption suspected")

	// Disk manager / I/O.
	ErrIO               = errors.New("disk manager: i/o error")
	ErrShortReadOrWrite = errors.New("disk manager: short read or write")

	// Header page.
	ErrIndexNotFound = errors.New("header page: index name not found")
)
