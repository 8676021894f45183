// Package bplustree implements a disk-resident B+-tree index: leaf and
// internal pages served through a buffer pool manager, a single
// tree-wide latch in place of latch-crabbing, and a leaf-chain iterator
// for range scans.
package bplustree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/pagestore/pagestore/internal/common"
	"github.com/pagestore/pagestore/pkg/dberrors"
	"github.com/pagestore/pagestore/pkg/telemetry"
	"github.com/pagestore/pagestore/storage/buffer"
	"github.com/pagestore/pagestore/storage/page"
	"github.com/pagestore/pagestore/txn"
)

// BPlusTree is a generic (K, V) B+-tree. K must be totally ordered by cmp.
type BPlusTree[K any, V any] struct {
	mu sync.RWMutex // one latch for the whole tree, no crabbing

	bpm       *buffer.Manager
	indexName string
	cmp       func(K, K) int

	leafMaxSize     int
	internalMaxSize int

	leaves    leafLayout[K, V]
	internals internalLayout[K]

	rootPageID page.ID
	log        *zap.Logger
	tel        *telemetry.Telemetry

	splits        metric.Int64Counter
	merges        metric.Int64Counter
	redistributes metric.Int64Counter
}

// New opens or creates the named index on bpm. leafMaxSize/internalMaxSize
// bound the number of entries a page may hold before it splits.
func New[K any, V any](
	bpm *buffer.Manager,
	indexName string,
	cmp func(K, K) int,
	kc KeyCodec[K],
	vc ValueCodec[V],
	leafMaxSize, internalMaxSize int,
	log *zap.Logger,
	tel *telemetry.Telemetry,
) (*BPlusTree[K, V], error) {
	if log == nil {
		log = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	t := &BPlusTree[K, V]{
		bpm:             bpm,
		indexName:       indexName,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		leaves:          newLeafLayout[K, V](kc, vc),
		internals:       newInternalLayout[K](kc),
		log:             log,
		tel:             tel,
	}
	t.splits, _ = tel.Meter.Int64Counter("pagestore.bplustree.splits")
	t.merges, _ = tel.Meter.Int64Counter("pagestore.bplustree.merges")
	t.redistributes, _ = tel.Meter.Int64Counter("pagestore.bplustree.redistributes")

	hp, err := bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return nil, fmt.Errorf("fetching header page: %w", err)
	}
	header := NewHeaderPage(hp)
	root, err := header.Lookup(indexName)
	if err != nil {
		if !errors.Is(err, dberrors.ErrIndexNotFound) {
			bpm.UnpinPage(page.HeaderPageID, false)
			return nil, err
		}
		root = page.InvalidID
	}
	t.rootPageID = root
	bpm.UnpinPage(page.HeaderPageID, false)
	return t, nil
}

// IsEmpty reports whether the tree currently has no root page.
func (t *BPlusTree[K, V]) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID == page.InvalidID
}

// GetRootPageID returns the tree's current root page id, page.InvalidID
// if the tree is empty.
func (t *BPlusTree[K, V]) GetRootPageID() page.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID
}

func (t *BPlusTree[K, V]) persistRoot() error {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return err
	}
	NewHeaderPage(hp).Upsert(t.indexName, t.rootPageID)
	return t.bpm.UnpinPage(page.HeaderPageID, true)
}

// GetValue returns the value stored under key, if any.
func (t *BPlusTree[K, V]) GetValue(key K) (V, bool, error) { return t.Search(key) }

// Remove deletes key. A missing key is a silent no-op.
func (t *BPlusTree[K, V]) Remove(key K) error { return t.Delete(key) }

// RemoveTxn is Remove scoped to tx. See DeleteTxn.
func (t *BPlusTree[K, V]) RemoveTxn(key K, tx *txn.Transaction) error { return t.DeleteTxn(key, tx) }

// Search returns the value stored under key, if any.
func (t *BPlusTree[K, V]) Search(key K) (V, bool, error) {
	_, span := t.tel.Tracer.Start(context.Background(), "bplustree.Search")
	defer span.End()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero V
	if t.rootPageID == page.InvalidID {
		return zero, false, nil
	}
	leaf, err := t.findLeaf(t.rootPageID, key)
	if err != nil {
		return zero, false, err
	}
	defer t.bpm.UnpinPage(leaf.ID(), false)

	idx, found := t.leafSearch(leaf, key)
	if !found {
		return zero, false, nil
	}
	return t.leaves.valueAt(leaf, idx), true, nil
}

// findLeaf descends from pageID to the leaf that would contain key,
// pinning only the pages on the path and unpinning every page but the
// last before returning it.
func (t *BPlusTree[K, V]) findLeaf(pageID page.ID, key K) (*page.Page, error) {
	p, err := t.bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	for kindOf(p) == kindInternal {
		child := t.internals.lookupChild(p, key, t.cmp)
		next, err := t.bpm.FetchPage(child)
		if err != nil {
			t.bpm.UnpinPage(p.ID(), false)
			return nil, err
		}
		t.bpm.UnpinPage(p.ID(), false)
		p = next
	}
	return p, nil
}

// leafSearch finds key's slot in a sorted leaf via binary search.
func (t *BPlusTree[K, V]) leafSearch(p *page.Page, key K) (int, bool) {
	size := int(sizeOf(p))
	lo, hi := 0, size-1
	for lo <= hi {
		mid := (lo + hi) / 2
		c := t.cmp(t.leaves.keyAt(p, mid), key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return lo, false
}

// Insert adds (key, value), returning dberrors.ErrDuplicateKey if key is
// already present; duplicate keys are not allowed.
func (t *BPlusTree[K, V]) Insert(key K, value V) error {
	return t.InsertTxn(key, value, nil)
}

// InsertTxn is Insert scoped to tx: every dirty page unpinned while the
// call runs gets its WAL record tagged with tx's id. tx may be nil, in
// which case it behaves exactly like Insert.
func (t *BPlusTree[K, V]) InsertTxn(key K, value V, tx *txn.Transaction) error {
	_, span := t.tel.Tracer.Start(context.Background(), "bplustree.Insert")
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.bpm.BeginTxnScope(tx)
	defer t.bpm.EndTxnScope()

	if t.rootPageID == page.InvalidID {
		p, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		t.leaves.init(p, int32(t.leafMaxSize))
		t.leaves.insertAt(p, 0, key, value)
		t.rootPageID = p.ID()
		if err := t.bpm.UnpinPage(p.ID(), true); err != nil {
			return err
		}
		return t.persistRoot()
	}

	path, leaf, err := t.findLeafWithPath(t.rootPageID, key)
	if err != nil {
		return err
	}
	idx, found := t.leafSearch(leaf, key)
	if found {
		t.bpm.UnpinPage(leaf.ID(), false)
		t.unpinPath(path)
		return dberrors.ErrDuplicateKey
	}
	t.leaves.insertAt(leaf, idx, key, value)

	if int(sizeOf(leaf)) <= t.leafMaxSize {
		t.bpm.UnpinPage(leaf.ID(), true)
		t.unpinPath(path)
		return nil
	}
	return t.splitLeafAndInsertUp(leaf, path)
}

// findLeafWithPath is findLeaf but also returns the stack of internal
// pages visited, left pinned, for use by split/merge propagation.
func (t *BPlusTree[K, V]) findLeafWithPath(rootID page.ID, key K) ([]*page.Page, *page.Page, error) {
	p, err := t.bpm.FetchPage(rootID)
	if err != nil {
		return nil, nil, err
	}
	var path []*page.Page
	for kindOf(p) == kindInternal {
		path = append(path, p)
		child := t.internals.lookupChild(p, key, t.cmp)
		next, err := t.bpm.FetchPage(child)
		if err != nil {
			t.unpinPath(path)
			return nil, nil, err
		}
		p = next
	}
	return path, p, nil
}

func (t *BPlusTree[K, V]) unpinPath(path []*page.Page) {
	for _, p := range path {
		t.bpm.UnpinPage(p.ID(), false)
	}
}

// reparent fetches childID through the buffer pool, sets its parent_page_id
// to parentID, and unpins it dirty. Every place a page is attached to (or
// detached to become) a parent goes through here, rather than each split
// and merge helper poking at the field itself.
func (t *BPlusTree[K, V]) reparent(childID, parentID page.ID) error {
	cp, err := t.bpm.FetchPage(childID)
	if err != nil {
		return err
	}
	setParentOf(cp, parentID)
	return t.bpm.UnpinPage(cp.ID(), true)
}

// splitLeafAndInsertUp splits an overfull leaf and threads the new
// separator key up through path, splitting internal pages as needed.
func (t *BPlusTree[K, V]) splitLeafAndInsertUp(leaf *page.Page, path []*page.Page) error {
	common.Assert(int(sizeOf(leaf)) > t.leafMaxSize, "splitLeafAndInsertUp called on a leaf that isn't over capacity")
	t.splits.Add(context.Background(), 1)
	newLeaf, err := t.bpm.NewPage()
	if err != nil {
		t.bpm.UnpinPage(leaf.ID(), true)
		t.unpinPath(path)
		return err
	}
	t.leaves.init(newLeaf, int32(t.leafMaxSize))

	size := int(sizeOf(leaf))
	mid := size / 2
	moved := size - mid
	t.leaves.copyEntries(newLeaf, leaf, mid, 0, moved)
	setSizeOf(newLeaf, int32(moved))
	setSizeOf(leaf, int32(mid))

	t.leaves.setNext(newLeaf, t.leaves.next(leaf))
	t.leaves.setNext(leaf, newLeaf.ID())

	separator := t.leaves.keyAt(newLeaf, 0)

	if err := t.bpm.UnpinPage(leaf.ID(), true); err != nil {
		return err
	}
	if err := t.bpm.UnpinPage(newLeaf.ID(), true); err != nil {
		return err
	}
	return t.insertIntoParent(leaf.ID(), separator, newLeaf.ID(), path)
}

// insertIntoParent threads (leftID, key, rightID) into the parent that is
// the top of path, growing a new root if path is empty, and recursing
// through a further internal split if the parent overflows.
func (t *BPlusTree[K, V]) insertIntoParent(leftID page.ID, key K, rightID page.ID, path []*page.Page) error {
	if len(path) == 0 {
		root, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		t.internals.init(root, int32(t.internalMaxSize))
		t.internals.setChildAt(root, 0, leftID)
		setSizeOf(root, 1)
		t.internals.insertAt(root, 1, key, rightID)
		t.rootPageID = root.ID()
		rootID := root.ID()
		if err := t.bpm.UnpinPage(rootID, true); err != nil {
			return err
		}
		if err := t.reparent(leftID, rootID); err != nil {
			return err
		}
		if err := t.reparent(rightID, rootID); err != nil {
			return err
		}
		return t.persistRoot()
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]

	// Locate leftID by scanning child pointers, not by mistaking the page
	// id for an array index.
	afterIdx := t.internals.valueIndex(parent, leftID)
	if afterIdx < 0 {
		t.bpm.UnpinPage(parent.ID(), false)
		t.unpinPath(rest)
		return dberrors.ErrCorruptPage
	}
	t.internals.insertAt(parent, afterIdx+1, key, rightID)
	if err := t.reparent(rightID, parent.ID()); err != nil {
		t.bpm.UnpinPage(parent.ID(), true)
		t.unpinPath(rest)
		return err
	}

	if int(sizeOf(parent)) <= t.internalMaxSize {
		t.unpinPath(rest)
		return t.bpm.UnpinPage(parent.ID(), true)
	}
	return t.splitInternalAndInsertUp(parent, rest)
}

func (t *BPlusTree[K, V]) splitInternalAndInsertUp(p *page.Page, path []*page.Page) error {
	common.Assert(int(sizeOf(p)) > t.internalMaxSize, "splitInternalAndInsertUp called on an internal page that isn't over capacity")
	t.splits.Add(context.Background(), 1)
	newInternal, err := t.bpm.NewPage()
	if err != nil {
		t.bpm.UnpinPage(p.ID(), true)
		t.unpinPath(path)
		return err
	}
	t.internals.init(newInternal, int32(t.internalMaxSize))

	size := int(sizeOf(p))
	mid := size / 2
	separator := t.internals.keyAt(p, mid)

	moved := size - mid
	t.internals.copyEntries(newInternal, p, mid, 0, moved)
	setSizeOf(newInternal, int32(moved))
	setSizeOf(p, int32(mid))

	newInternalID := newInternal.ID()
	for i := 0; i < moved; i++ {
		if err := t.reparent(t.internals.childAt(newInternal, i), newInternalID); err != nil {
			t.bpm.UnpinPage(p.ID(), true)
			t.bpm.UnpinPage(newInternalID, true)
			t.unpinPath(path)
			return err
		}
	}

	if err := t.bpm.UnpinPage(p.ID(), true); err != nil {
		return err
	}
	if err := t.bpm.UnpinPage(newInternalID, true); err != nil {
		return err
	}
	return t.insertIntoParent(p.ID(), separator, newInternalID, path)
}

// minLeafSize and minInternalSize follow BusTub's convention: a non-root
// page must stay at least half full after a delete.
func (t *BPlusTree[K, V]) minLeafSize() int     { return (t.leafMaxSize + 1) / 2 }
func (t *BPlusTree[K, V]) minInternalSize() int { return (t.internalMaxSize + 1) / 2 }

// Delete removes key. A key that isn't present is a silent no-op, not an
// error; only a structural or I/O failure returns one.
func (t *BPlusTree[K, V]) Delete(key K) error {
	return t.DeleteTxn(key, nil)
}

// DeleteTxn is Delete scoped to tx: every dirty page unpinned while the
// call runs gets its WAL record tagged with tx's id. tx may be nil, in
// which case it behaves exactly like Delete.
func (t *BPlusTree[K, V]) DeleteTxn(key K, tx *txn.Transaction) error {
	_, span := t.tel.Tracer.Start(context.Background(), "bplustree.Delete")
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.bpm.BeginTxnScope(tx)
	defer t.bpm.EndTxnScope()

	if t.rootPageID == page.InvalidID {
		return nil
	}
	path, leaf, err := t.findLeafWithPath(t.rootPageID, key)
	if err != nil {
		return err
	}
	idx, found := t.leafSearch(leaf, key)
	if !found {
		t.bpm.UnpinPage(leaf.ID(), false)
		t.unpinPath(path)
		return nil
	}
	t.leaves.removeAt(leaf, idx)

	return t.handleLeafUnderflow(leaf, path)
}

func (t *BPlusTree[K, V]) handleLeafUnderflow(leaf *page.Page, path []*page.Page) error {
	if leaf.ID() == t.rootPageID {
		// A root leaf is exempt from the minimum fill invariant, but an
		// empty root leaf means the tree itself is now empty.
		if int(sizeOf(leaf)) == 0 {
			t.rootPageID = page.InvalidID
			if err := t.bpm.UnpinPage(leaf.ID(), true); err != nil {
				return err
			}
			return t.persistRoot()
		}
		return t.bpm.UnpinPage(leaf.ID(), true)
	}
	if int(sizeOf(leaf)) >= t.minLeafSize() {
		t.unpinPath(path)
		return t.bpm.UnpinPage(leaf.ID(), true)
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]
	myIdx := t.internals.valueIndex(parent, leaf.ID())
	if myIdx < 0 {
		t.bpm.UnpinPage(leaf.ID(), true)
		t.bpm.UnpinPage(parent.ID(), false)
		t.unpinPath(rest)
		return dberrors.ErrCorruptPage
	}

	// Prefer borrowing from the left sibling, then the right.
	if myIdx > 0 {
		leftID := t.internals.childAt(parent, myIdx-1)
		left, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		if int(sizeOf(left)) > t.minLeafSize() {
			t.borrowLeafFromLeft(left, leaf, parent, myIdx)
			t.bpm.UnpinPage(left.ID(), true)
			t.bpm.UnpinPage(leaf.ID(), true)
			t.unpinPath(rest)
			return t.bpm.UnpinPage(parent.ID(), true)
		}
		t.bpm.UnpinPage(left.ID(), false)
	}
	if myIdx < int(sizeOf(parent))-1 {
		rightID := t.internals.childAt(parent, myIdx+1)
		right, err := t.bpm.FetchPage(rightID)
		if err != nil {
			return err
		}
		if int(sizeOf(right)) > t.minLeafSize() {
			t.borrowLeafFromRight(leaf, right, parent, myIdx)
			t.bpm.UnpinPage(right.ID(), true)
			t.bpm.UnpinPage(leaf.ID(), true)
			t.unpinPath(rest)
			return t.bpm.UnpinPage(parent.ID(), true)
		}
		t.bpm.UnpinPage(right.ID(), false)
	}

	// No sibling has a surplus: merge with a sibling and recurse up.
	if myIdx > 0 {
		leftID := t.internals.childAt(parent, myIdx-1)
		left, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		t.mergeLeaves(left, leaf)
		t.internals.removeAt(parent, myIdx)
		t.bpm.UnpinPage(left.ID(), true)
		t.bpm.UnpinPage(leaf.ID(), false)
		if err := t.bpm.DeletePage(leaf.ID()); err != nil {
			return err
		}
		return t.handleInternalUnderflow(parent, rest)
	}

	rightID := t.internals.childAt(parent, myIdx+1)
	right, err := t.bpm.FetchPage(rightID)
	if err != nil {
		return err
	}
	t.mergeLeaves(leaf, right)
	t.internals.removeAt(parent, myIdx+1)
	t.bpm.UnpinPage(leaf.ID(), true)
	t.bpm.UnpinPage(right.ID(), false)
	if err := t.bpm.DeletePage(right.ID()); err != nil {
		return err
	}
	return t.handleInternalUnderflow(parent, rest)
}

func (t *BPlusTree[K, V]) borrowLeafFromLeft(left, leaf, parent *page.Page, leafIdx int) {
	t.redistributes.Add(context.Background(), 1)
	n := int(sizeOf(left)) - 1
	k, v := t.leaves.keyAt(left, n), t.leaves.valueAt(left, n)
	t.leaves.removeAt(left, n)
	t.leaves.insertAt(leaf, 0, k, v)
	t.internals.setKeyAt(parent, leafIdx, t.leaves.keyAt(leaf, 0))
}

func (t *BPlusTree[K, V]) borrowLeafFromRight(leaf, right, parent *page.Page, leafIdx int) {
	t.redistributes.Add(context.Background(), 1)
	k, v := t.leaves.keyAt(right, 0), t.leaves.valueAt(right, 0)
	t.leaves.removeAt(right, 0)
	t.leaves.insertAt(leaf, int(sizeOf(leaf)), k, v)
	t.internals.setKeyAt(parent, leafIdx+1, t.leaves.keyAt(right, 0))
}

func (t *BPlusTree[K, V]) mergeLeaves(left, right *page.Page) {
	t.merges.Add(context.Background(), 1)
	n := int(sizeOf(left))
	m := int(sizeOf(right))
	common.Assert(n+m <= t.leafMaxSize, "mergeLeaves: combined size exceeds leafMaxSize")
	t.leaves.copyEntries(left, right, 0, n, m)
	setSizeOf(left, int32(n+m))
	t.leaves.setNext(left, t.leaves.next(right))
}

func (t *BPlusTree[K, V]) handleInternalUnderflow(p *page.Page, path []*page.Page) error {
	if p.ID() == t.rootPageID {
		if int(sizeOf(p)) == 1 {
			// The root has a single child left: that child becomes the
			// new root and this page is discarded.
			onlyChild := t.internals.childAt(p, 0)
			t.rootPageID = onlyChild
			if err := t.bpm.UnpinPage(p.ID(), true); err != nil {
				return err
			}
			if err := t.bpm.DeletePage(p.ID()); err != nil {
				return err
			}
			if err := t.reparent(onlyChild, page.InvalidID); err != nil {
				return err
			}
			return t.persistRoot()
		}
		return t.bpm.UnpinPage(p.ID(), true)
	}
	if int(sizeOf(p)) >= t.minInternalSize() {
		t.unpinPath(path)
		return t.bpm.UnpinPage(p.ID(), true)
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]
	myIdx := t.internals.valueIndex(parent, p.ID())
	if myIdx < 0 {
		t.bpm.UnpinPage(p.ID(), true)
		t.bpm.UnpinPage(parent.ID(), false)
		t.unpinPath(rest)
		return dberrors.ErrCorruptPage
	}

	if myIdx > 0 {
		leftID := t.internals.childAt(parent, myIdx-1)
		left, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		if int(sizeOf(left)) > t.minInternalSize() {
			if err := t.borrowInternalFromLeft(left, p, parent, myIdx); err != nil {
				t.bpm.UnpinPage(left.ID(), true)
				t.bpm.UnpinPage(p.ID(), true)
				t.bpm.UnpinPage(parent.ID(), true)
				return err
			}
			t.bpm.UnpinPage(left.ID(), true)
			t.bpm.UnpinPage(p.ID(), true)
			t.unpinPath(rest)
			return t.bpm.UnpinPage(parent.ID(), true)
		}
		t.bpm.UnpinPage(left.ID(), false)
	}
	if myIdx < int(sizeOf(parent))-1 {
		rightID := t.internals.childAt(parent, myIdx+1)
		right, err := t.bpm.FetchPage(rightID)
		if err != nil {
			return err
		}
		if int(sizeOf(right)) > t.minInternalSize() {
			if err := t.borrowInternalFromRight(p, right, parent, myIdx); err != nil {
				t.bpm.UnpinPage(right.ID(), true)
				t.bpm.UnpinPage(p.ID(), true)
				t.bpm.UnpinPage(parent.ID(), true)
				return err
			}
			t.bpm.UnpinPage(right.ID(), true)
			t.bpm.UnpinPage(p.ID(), true)
			t.unpinPath(rest)
			return t.bpm.UnpinPage(parent.ID(), true)
		}
		t.bpm.UnpinPage(right.ID(), false)
	}

	if myIdx > 0 {
		leftID := t.internals.childAt(parent, myIdx-1)
		left, err := t.bpm.FetchPage(leftID)
		if err != nil {
			return err
		}
		sepIdx := myIdx
		if err := t.mergeInternals(left, p, t.internals.keyAt(parent, sepIdx)); err != nil {
			return err
		}
		t.internals.removeAt(parent, myIdx)
		t.bpm.UnpinPage(left.ID(), true)
		t.bpm.UnpinPage(p.ID(), false)
		if err := t.bpm.DeletePage(p.ID()); err != nil {
			return err
		}
		return t.handleInternalUnderflow(parent, rest)
	}

	rightID := t.internals.childAt(parent, myIdx+1)
	right, err := t.bpm.FetchPage(rightID)
	if err != nil {
		return err
	}
	sepIdx := myIdx + 1
	if err := t.mergeInternals(p, right, t.internals.keyAt(parent, sepIdx)); err != nil {
		return err
	}
	t.internals.removeAt(parent, myIdx+1)
	t.bpm.UnpinPage(p.ID(), true)
	t.bpm.UnpinPage(right.ID(), false)
	if err := t.bpm.DeletePage(right.ID()); err != nil {
		return err
	}
	return t.handleInternalUnderflow(parent, rest)
}

// borrowInternalFromLeft moves left's last child over to p's front slot,
// reparenting it, and adjusts the separator key in parent.
func (t *BPlusTree[K, V]) borrowInternalFromLeft(left, p, parent *page.Page, idx int) error {
	t.redistributes.Add(context.Background(), 1)
	n := int(sizeOf(left)) - 1
	k := t.internals.keyAt(left, n)
	child := t.internals.childAt(left, n)
	t.internals.removeAt(left, n)

	oldSeparator := t.internals.keyAt(parent, idx)
	t.internals.insertAt(p, 1, oldSeparator, t.internals.childAt(p, 0))
	t.internals.setChildAt(p, 0, child)
	t.internals.setKeyAt(parent, idx, k)
	return t.reparent(child, p.ID())
}

// borrowInternalFromRight moves right's first child over to p's back slot.
func (t *BPlusTree[K, V]) borrowInternalFromRight(p, right, parent *page.Page, idx int) error {
	t.redistributes.Add(context.Background(), 1)
	k := t.internals.keyAt(right, 1)
	child := t.internals.childAt(right, 0)
	oldSeparator := t.internals.keyAt(parent, idx+1)

	t.internals.insertAt(p, int(sizeOf(p)), oldSeparator, child)
	t.internals.removeAt(right, 0)
	t.internals.setKeyAt(parent, idx+1, k)
	return t.reparent(child, p.ID())
}

// mergeInternals absorbs right's entries into left and reparents every
// child right previously owned.
func (t *BPlusTree[K, V]) mergeInternals(left, right *page.Page, separator K) error {
	t.merges.Add(context.Background(), 1)
	n := int(sizeOf(left))
	m := int(sizeOf(right))
	common.Assert(n+m <= t.internalMaxSize, "mergeInternals: combined size exceeds internalMaxSize")
	t.internals.insertAt(left, n, separator, t.internals.childAt(right, 0))
	t.internals.copyEntries(left, right, 1, n+1, m-1)
	setSizeOf(left, int32(n+m))
	leftID := left.ID()
	for i := 0; i < m; i++ {
		if err := t.reparent(t.internals.childAt(left, n+i), leftID); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes a human-readable, indented listing of the tree to w, a
// supplement to the BusTub original's debug-only print routines.
func (t *BPlusTree[K, V]) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rootPageID == page.InvalidID {
		fmt.Fprintln(w, "<empty tree>")
		return nil
	}
	return t.dump(w, t.rootPageID, 0)
}

func (t *BPlusTree[K, V]) dump(w io.Writer, id page.ID, depth int) error {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.bpm.UnpinPage(id, false)

	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	size := int(sizeOf(p))
	if kindOf(p) == kindLeaf {
		fmt.Fprintf(w, "%sleaf(page=%d, n=%d):", indent, id, size)
		for i := 0; i < size; i++ {
			fmt.Fprintf(w, " %v", t.leaves.keyAt(p, i))
		}
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintf(w, "%sinternal(page=%d, n=%d):", indent, id, size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(w, " %v", t.internals.keyAt(p, i))
	}
	fmt.Fprintln(w)
	children := make([]page.ID, size)
	for i := 0; i < size; i++ {
		children[i] = t.internals.childAt(p, i)
	}
	for _, c := range children {
		if err := t.dump(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// VerifyInvariants walks the whole tree and checks its structural
// invariants: every non-root page's parent_page_id names an internal
// page that actually holds that page's id, every leaf is at the same
// depth, and no non-root page is under-full. It is meant for tests, not
// the hot path.
func (t *BPlusTree[K, V]) VerifyInvariants() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rootPageID == page.InvalidID {
		return nil
	}
	leafDepth := -1
	return t.verify(t.rootPageID, page.InvalidID, 0, &leafDepth)
}

func (t *BPlusTree[K, V]) verify(id, expectedParent page.ID, depth int, leafDepth *int) error {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.bpm.UnpinPage(id, false)

	if parentOf(p) != expectedParent {
		return fmt.Errorf("page %d: parent_page_id = %d, want %d", id, parentOf(p), expectedParent)
	}

	size := int(sizeOf(p))
	isRoot := id == t.rootPageID
	if kindOf(p) == kindLeaf {
		if !isRoot && size < t.minLeafSize() {
			return fmt.Errorf("leaf %d: size %d below minimum %d", id, size, t.minLeafSize())
		}
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return fmt.Errorf("leaf %d at depth %d, want %d", id, depth, *leafDepth)
		}
		return nil
	}

	if !isRoot && size < t.minInternalSize() {
		return fmt.Errorf("internal %d: size %d below minimum %d", id, size, t.minInternalSize())
	}
	if isRoot && size < 2 {
		return fmt.Errorf("root internal %d: size %d below 2", id, size)
	}
	for i := 0; i < size; i++ {
		child := t.internals.childAt(p, i)
		if err := t.verify(child, id, depth+1, leafDepth); err != nil {
			return err
		}
	}
	return nil
}
