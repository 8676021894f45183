package bplustree

import (
	"github.com/pagestore/pagestore/pkg/dberrors"
	"github.com/pagestore/pagestore/storage/page"
)

// headerNameWidth bounds the length of an index name stored on the
// header page, which holds index_name -> root_page_id records.
const headerNameWidth = 64
const headerRecordSize = headerNameWidth + 8
const headerCountOffset = 0
const headerRecordsOffset = 4

// HeaderPage is a view over the well-known page.HeaderPageID page, mapping
// index names to their current root page id.
type HeaderPage struct{ p *page.Page }

func NewHeaderPage(p *page.Page) *HeaderPage {
	return &HeaderPage{p: p}
}

func (h *HeaderPage) count() int {
	return int(getInt32(h.p.Data()[headerCountOffset : headerCountOffset+4]))
}

func (h *HeaderPage) recordOffset(i int) int {
	return headerRecordsOffset + i*headerRecordSize
}

func (h *HeaderPage) nameAt(i int) string {
	off := h.recordOffset(i)
	b := h.p.Data()[off : off+headerNameWidth]
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (h *HeaderPage) rootAt(i int) page.ID {
	off := h.recordOffset(i) + headerNameWidth
	return page.ID(getInt64(h.p.Data()[off : off+8]))
}

func (h *HeaderPage) setRootAt(i int, id page.ID) {
	off := h.recordOffset(i) + headerNameWidth
	putInt64(h.p.Data()[off:off+8], int64(id))
}

// Lookup returns the root page id registered under name.
func (h *HeaderPage) Lookup(name string) (page.ID, error) {
	for i := 0; i < h.count(); i++ {
		if h.nameAt(i) == name {
			return h.rootAt(i), nil
		}
	}
	return page.InvalidID, dberrors.ErrIndexNotFound
}

// Upsert records name's root page id, overwriting any existing record.
func (h *HeaderPage) Upsert(name string, root page.ID) error {
	for i := 0; i < h.count(); i++ {
		if h.nameAt(i) == name {
			h.setRootAt(i, root)
			return nil
		}
	}
	if len(name) > headerNameWidth {
		name = name[:headerNameWidth]
	}
	n := h.count()
	off := h.recordOffset(n)
	d := h.p.Data()
	for i := 0; i < headerNameWidth; i++ {
		d[off+i] = 0
	}
	copy(d[off:off+headerNameWidth], name)
	h.setRootAt(n, root)
	putInt32(d[headerCountOffset:headerCountOffset+4], int32(n+1))
	return nil
}
