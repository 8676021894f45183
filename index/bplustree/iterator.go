package bplustree

import "github.com/pagestore/pagestore/storage/page"

// Iterator walks the leaf chain in key order. It holds the tree's read
// latch for its entire lifetime, so callers must Close it before issuing
// a write against the same tree.
type Iterator[K any, V any] struct {
	tree      *BPlusTree[K, V]
	leaf      *page.Page
	idx       int
	exhausted bool // no more entries, but the read latch is still held
	lockHeld  bool
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	t.mu.RLock()
	it := &Iterator[K, V]{tree: t, lockHeld: true}
	if t.rootPageID == page.InvalidID {
		it.exhausted = true
		return it, nil
	}
	leaf, err := t.leftmostLeaf(t.rootPageID)
	if err != nil {
		t.mu.RUnlock()
		it.lockHeld = false
		return nil, err
	}
	it.leaf = leaf
	return it, nil
}

// BeginAt returns an iterator positioned at the smallest key >= key.
func (t *BPlusTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	t.mu.RLock()
	it := &Iterator[K, V]{tree: t, lockHeld: true}
	if t.rootPageID == page.InvalidID {
		it.exhausted = true
		return it, nil
	}
	leaf, err := t.findLeaf(t.rootPageID, key)
	if err != nil {
		t.mu.RUnlock()
		it.lockHeld = false
		return nil, err
	}
	idx, _ := t.leafSearch(leaf, key)
	it.leaf = leaf
	it.idx = idx
	it.skipToValid()
	return it, nil
}

func (t *BPlusTree[K, V]) leftmostLeaf(id page.ID) (*page.Page, error) {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		return nil, err
	}
	for kindOf(p) == kindInternal {
		child := t.internals.childAt(p, 0)
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

// skipToValid advances across empty leaves (possible transiently right
// after a merge) until it lands on a real entry or the end.
func (it *Iterator[K, V]) skipToValid() {
	for !it.exhausted && it.leaf != nil && it.idx >= int(sizeOf(it.leaf)) {
		next := it.tree.leaves.next(it.leaf)
		it.tree.bpm.UnpinPage(it.leaf.ID(), false)
		if next == page.InvalidID {
			it.leaf = nil
			it.exhausted = true
			return
		}
		p, err := it.tree.bpm.FetchPage(next)
		if err != nil {
			it.leaf = nil
			it.exhausted = true
			return
		}
		it.leaf = p
		it.idx = 0
	}
}

// Valid reports whether Key/Value currently refer to a real entry.
func (it *Iterator[K, V]) Valid() bool {
	return !it.exhausted && it.leaf != nil && it.idx < int(sizeOf(it.leaf))
}

func (it *Iterator[K, V]) Key() K   { return it.tree.leaves.keyAt(it.leaf, it.idx) }
func (it *Iterator[K, V]) Value() V { return it.tree.leaves.valueAt(it.leaf, it.idx) }

// Next advances to the following entry, crossing into the next leaf when
// the current one is exhausted.
func (it *Iterator[K, V]) Next() {
	if it.exhausted {
		return
	}
	it.idx++
	it.skipToValid()
}

// Close releases the pinned leaf page and the tree's read latch. An
// iterator run to exhaustion (Valid() == false) still must be Closed.
func (it *Iterator[K, V]) Close() {
	if it.leaf != nil {
		it.tree.bpm.UnpinPage(it.leaf.ID(), false)
		it.leaf = nil
	}
	if it.lockHeld {
		it.lockHeld = false
		it.tree.mu.RUnlock()
	}
}
