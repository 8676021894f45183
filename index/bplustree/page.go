package bplustree

import "github.com/pagestore/pagestore/storage/page"

// pageKind distinguishes a B+-tree internal page from a leaf page, stored
// as the first byte of every tree page's data, mirroring BusTub's
// IndexPageType.
type pageKind byte

const (
	kindInvalid  pageKind = 0
	kindInternal pageKind = 1
	kindLeaf     pageKind = 2
)

// Header layout shared by leaf and internal pages:
//
//	[0]       pageKind
//	[1:5]     size (int32, number of valid slots)
//	[5:9]     maxSize (int32)
//	[9:17]    parentPageID (int64, page.InvalidID iff this page is the root)
const headerSize = 17

func putInt32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func getInt32(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}

func kindOf(p *page.Page) pageKind { return pageKind(p.Data()[0]) }

func sizeOf(p *page.Page) int32 { return getInt32(p.Data()[1:5]) }

func setSizeOf(p *page.Page, n int32) { putInt32(p.Data()[1:5], n) }

func maxSizeOf(p *page.Page) int32 { return getInt32(p.Data()[5:9]) }

func setMaxSizeOf(p *page.Page, n int32) { putInt32(p.Data()[5:9], n) }

// parentOf returns page.InvalidID when p is the root.
func parentOf(p *page.Page) page.ID { return page.ID(getInt64(p.Data()[9:17])) }

func setParentOf(p *page.Page, id page.ID) { putInt64(p.Data()[9:17], int64(id)) }
