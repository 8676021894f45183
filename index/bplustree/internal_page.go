package bplustree

import "github.com/pagestore/pagestore/storage/page"

const internalEntriesOffset = headerSize

// internalLayout knows how to read and write internal pages. An internal
// page with size n holds n child pointers and n-1 separator keys, stored
// as BusTub does: entry 0 has a child pointer but no meaningful key.
type internalLayout[K any] struct {
	keyCodec  KeyCodec[K]
	entrySize int
}

func newInternalLayout[K any](kc KeyCodec[K]) internalLayout[K] {
	return internalLayout[K]{keyCodec: kc, entrySize: kc.Size() + 8}
}

func (l internalLayout[K]) init(p *page.Page, maxSize int32) {
	p.Data()[0] = byte(kindInternal)
	setSizeOf(p, 0)
	setMaxSizeOf(p, maxSize)
	setParentOf(p, page.InvalidID)
}

func (l internalLayout[K]) offset(i int) int { return internalEntriesOffset + i*l.entrySize }

func (l internalLayout[K]) keyAt(p *page.Page, i int) K {
	off := l.offset(i)
	return l.keyCodec.Decode(p.Data()[off : off+l.keyCodec.Size()])
}

func (l internalLayout[K]) setKeyAt(p *page.Page, i int, k K) {
	off := l.offset(i)
	l.keyCodec.Encode(k, p.Data()[off:off+l.keyCodec.Size()])
}

func (l internalLayout[K]) childAt(p *page.Page, i int) page.ID {
	off := l.offset(i) + l.keyCodec.Size()
	return page.ID(getInt64(p.Data()[off : off+8]))
}

func (l internalLayout[K]) setChildAt(p *page.Page, i int, id page.ID) {
	off := l.offset(i) + l.keyCodec.Size()
	putInt64(p.Data()[off:off+8], int64(id))
}

func (l internalLayout[K]) setAt(p *page.Page, i int, k K, child page.ID) {
	l.setKeyAt(p, i, k)
	l.setChildAt(p, i, child)
}

// insertAt shifts entries [i, size) right by one slot.
func (l internalLayout[K]) insertAt(p *page.Page, i int, k K, child page.ID) {
	size := int(sizeOf(p))
	d := p.Data()
	src := l.offset(i)
	dst := l.offset(i + 1)
	copy(d[dst:dst+(size-i)*l.entrySize], d[src:src+(size-i)*l.entrySize])
	l.setAt(p, i, k, child)
	setSizeOf(p, int32(size+1))
}

func (l internalLayout[K]) removeAt(p *page.Page, i int) {
	size := int(sizeOf(p))
	d := p.Data()
	dst := l.offset(i)
	src := l.offset(i + 1)
	copy(d[dst:dst+(size-i-1)*l.entrySize], d[src:src+(size-i-1)*l.entrySize])
	setSizeOf(p, int32(size-1))
}

func (l internalLayout[K]) copyEntries(dst, src *page.Page, srcFrom, destStart, count int) {
	if count <= 0 {
		return
	}
	d, s := dst.Data(), src.Data()
	dstOff := l.offset(destStart)
	srcOff := l.offset(srcFrom)
	copy(d[dstOff:dstOff+count*l.entrySize], s[srcOff:srcOff+count*l.entrySize])
}

// valueIndex returns the slot index whose child pointer equals id, or -1.
// A known class of bug in this style of B+-tree calls ValueAt(old_page_id)
// here, treating a page id as an array index; valueIndex instead scans
// for it by pointer value.
func (l internalLayout[K]) valueIndex(p *page.Page, id page.ID) int {
	size := int(sizeOf(p))
	for i := 0; i < size; i++ {
		if l.childAt(p, i) == id {
			return i
		}
	}
	return -1
}

// lookupChild finds the child pointer to follow for key, given a
// comparator. Entry 0's key is a sentinel; entries 1..size-1 are sorted.
func (l internalLayout[K]) lookupChild(p *page.Page, key K, cmp func(K, K) int) page.ID {
	size := int(sizeOf(p))
	lo, hi := 1, size-1
	result := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if cmp(l.keyAt(p, mid), key) <= 0 {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return l.childAt(p, result)
}
