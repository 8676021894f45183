// Package replacer implements the LRU-K frame replacement policy used by
// the buffer pool manager to pick eviction victims.
package replacer

import (
	"sync"

	"github.com/pagestore/pagestore/pkg/dberrors"
	"go.uber.org/zap"
)

// record is the per-frame history the replacer tracks: a bounded FIFO of
// up to k access timestamps (oldest at the front) plus an evictable flag.
type record struct {
	history   []uint64 // oldest first, len <= k
	evictable bool
}

// LRUK implements an LRU-K eviction policy: prefer frames with fewer
// than k recorded accesses ("infinite backward k-distance"); among frames
// that are tied on that, or among frames that all have k accesses, pick the
// one whose oldest-of-the-last-k access is smallest.
type LRUK struct {
	mu sync.Mutex

	capacity  int
	k         int
	clock     uint64
	records   map[int]*record
	evictable int

	log *zap.Logger
}

// New creates a replacer that can track frame ids in [0, capacity).
func New(capacity, k int, log *zap.Logger) *LRUK {
	if log == nil {
		log = zap.NewNop()
	}
	return &LRUK{
		capacity: capacity,
		k:        k,
		records:  make(map[int]*record),
		log:      log,
	}
}

func (r *LRUK) inRange(frameID int) bool {
	return frameID >= 0 && frameID < r.capacity
}

// RecordAccess appends the next logical timestamp to frameID's history,
// dropping the oldest entry once the history exceeds k.
func (r *LRUK) RecordAccess(frameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inRange(frameID) {
		return dberrors.ErrInvalidFrame
	}
	rec, ok := r.records[frameID]
	if !ok {
		rec = &record{}
		r.records[frameID] = rec
	}
	r.clock++
	rec.history = append(rec.history, r.clock)
	if len(rec.history) > r.k {
		rec.history = rec.history[1:]
	}
	return nil
}

// SetEvictable toggles whether a frame is a candidate for Evict, keeping
// the evictable counter consistent.
func (r *LRUK) SetEvictable(frameID int, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inRange(frameID) {
		return dberrors.ErrInvalidFrame
	}
	rec, ok := r.records[frameID]
	if !ok {
		rec = &record{}
		r.records[frameID] = rec
	}
	if rec.evictable != evictable {
		if evictable {
			r.evictable++
		} else {
			r.evictable--
		}
		rec.evictable = evictable
	}
	return nil
}

// Remove drops an evictable frame's record. A frame with no record is a
// silent no-op; a frame that is present but not evictable is an error.
func (r *LRUK) Remove(frameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[frameID]
	if !ok {
		return nil
	}
	if !rec.evictable {
		return dberrors.ErrFrameNotEvictable
	}
	delete(r.records, frameID)
	r.evictable--
	return nil
}

// Evict picks a victim among the evictable frames and erases its record.
// It reports ok=false, rather than an error, when no frame qualifies:
// "no candidate" is a normal outcome, not a failure.
func (r *LRUK) Evict() (frameID int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim := -1
	for id, rec := range r.records {
		if !rec.evictable {
			continue
		}
		if victim == -1 || r.worseThan(id, victim) {
			victim = id
		}
	}
	if victim == -1 {
		return 0, false
	}
	delete(r.records, victim)
	r.evictable--
	r.log.Debug("lru-k evicted frame", zap.Int("frame_id", victim))
	return victim, true
}

// worseThan reports whether candidate s is a better eviction victim than
// the current best t: s has fewer than k accesses while t has exactly k,
// or both are on the same side of that boundary and s's oldest-of-the-last-k
// timestamp is smaller (older).
func (r *LRUK) worseThan(s, t int) bool {
	rs, rt := r.records[s], r.records[t]
	sInf := len(rs.history) < r.k
	tInf := len(rt.history) < r.k
	if sInf && !tInf {
		return true
	}
	if !sInf && tInf {
		return false
	}
	return rs.history[0] < rt.history[0]
}

// Size reports the number of currently evictable frames.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
