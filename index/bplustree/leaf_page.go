package bplustree

import "github.com/pagestore/pagestore/storage/page"

// leafExtraSize is the size of the leaf-only header field that follows the
// common header:
// the id of the next leaf in the leaf chain, INVALID_PAGE_ID if this is
// the rightmost leaf.
const leafExtraSize = 8
const leafEntriesOffset = headerSize + leafExtraSize

// leafLayout knows how to read and write leaf pages for a given (K, V).
type leafLayout[K any, V any] struct {
	keyCodec   KeyCodec[K]
	valueCodec ValueCodec[V]
	entrySize  int
}

func newLeafLayout[K any, V any](kc KeyCodec[K], vc ValueCodec[V]) leafLayout[K, V] {
	return leafLayout[K, V]{keyCodec: kc, valueCodec: vc, entrySize: kc.Size() + vc.Size()}
}

func (l leafLayout[K, V]) init(p *page.Page, maxSize int32) {
	d := p.Data()
	d[0] = byte(kindLeaf)
	setSizeOf(p, 0)
	setMaxSizeOf(p, maxSize)
	setParentOf(p, page.InvalidID)
	putInt64(d[headerSize:headerSize+8], int64(page.InvalidID))
}

func (l leafLayout[K, V]) next(p *page.Page) page.ID {
	return page.ID(getInt64(p.Data()[headerSize : headerSize+8]))
}

func (l leafLayout[K, V]) setNext(p *page.Page, id page.ID) {
	putInt64(p.Data()[headerSize:headerSize+8], int64(id))
}

func (l leafLayout[K, V]) offset(i int) int { return leafEntriesOffset + i*l.entrySize }

func (l leafLayout[K, V]) keyAt(p *page.Page, i int) K {
	off := l.offset(i)
	return l.keyCodec.Decode(p.Data()[off : off+l.keyCodec.Size()])
}

func (l leafLayout[K, V]) valueAt(p *page.Page, i int) V {
	off := l.offset(i) + l.keyCodec.Size()
	return l.valueCodec.Decode(p.Data()[off : off+l.valueCodec.Size()])
}

func (l leafLayout[K, V]) setAt(p *page.Page, i int, k K, v V) {
	off := l.offset(i)
	d := p.Data()
	l.keyCodec.Encode(k, d[off:off+l.keyCodec.Size()])
	l.valueCodec.Encode(v, d[off+l.keyCodec.Size():off+l.entrySize])
}

// insertAt shifts entries [i, size) right by one slot and writes (k, v)
// into slot i, then bumps size. Callers must have checked there is room.
func (l leafLayout[K, V]) insertAt(p *page.Page, i int, k K, v V) {
	size := int(sizeOf(p))
	d := p.Data()
	src := l.offset(i)
	dst := l.offset(i + 1)
	copy(d[dst:dst+(size-i)*l.entrySize], d[src:src+(size-i)*l.entrySize])
	l.setAt(p, i, k, v)
	setSizeOf(p, int32(size+1))
}

// removeAt shifts entries (i, size) left by one slot, dropping slot i.
func (l leafLayout[K, V]) removeAt(p *page.Page, i int) {
	size := int(sizeOf(p))
	d := p.Data()
	dst := l.offset(i)
	src := l.offset(i + 1)
	copy(d[dst:dst+(size-i-1)*l.entrySize], d[src:src+(size-i-1)*l.entrySize])
	setSizeOf(p, int32(size-1))
}

// copyEntries copies count entries of src, starting at slot srcFrom, into
// dst starting at slot destStart, used when splitting, merging, or
// redistributing. It does not update either page's size.
func (l leafLayout[K, V]) copyEntries(dst, src *page.Page, srcFrom, destStart, count int) {
	if count <= 0 {
		return
	}
	d, s := dst.Data(), src.Data()
	dstOff := l.offset(destStart)
	srcOff := l.offset(srcFrom)
	copy(d[dstOff:dstOff+count*l.entrySize], s[srcOff:srcOff+count*l.entrySize])
}
