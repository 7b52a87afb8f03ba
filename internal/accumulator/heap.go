package accumulator

import "github.com/impactrank/impactrank/internal/primitive"

// heapEntry is one (docid, score) pair held in a topKHeap.
type heapEntry struct {
	docid primitive.DocID
	score uint32
}

// topKHeap is a min-heap ordered (score ascending, docid descending), so
// its root is always the current worst-ranked member of the candidate set
// — the first one to be evicted when a better document arrives. A side
// table tracks each live docid's index in the heap so AddWithImpact can
// increase-key in O(log k) instead of scanning all k entries.
type topKHeap struct {
	entries []heapEntry
	pos     []int32 // indexed by docid; -1 if docid is not currently in the heap
	cap     int
}

func newTopKHeap(documentCount uint64, capacity int) *topKHeap {
	pos := make([]int32, documentCount)
	for i := range pos {
		pos[i] = -1
	}
	return &topKHeap{entries: make([]heapEntry, 0, capacity), pos: pos, cap: capacity}
}

func (h *topKHeap) reset() {
	for _, e := range h.entries {
		h.pos[e.docid] = -1
	}
	h.entries = h.entries[:0]
}

func (h *topKHeap) less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.score != b.score {
		return a.score < b.score
	}
	return a.docid > b.docid
}

func (h *topKHeap) swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.pos[h.entries[i].docid] = int32(i)
	h.pos[h.entries[j].docid] = int32(j)
}

func (h *topKHeap) siftDown(i int) {
	n := len(h.entries)
	for {
		smallest := i
		l, r := 2*i+1, 2*i+2
		if l < n && h.less(l, smallest) {
			smallest = l
		}
		if r < n && h.less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *topKHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

// fix restores heap order after the entry at i changed value in place.
func (h *topKHeap) fix(i int) {
	h.siftDown(i)
	h.siftUp(i)
}

func (h *topKHeap) full() bool {
	return len(h.entries) >= h.cap
}

func (h *topKHeap) root() heapEntry {
	return h.entries[0]
}

// update folds a newly observed (docid, score) pair into the heap: raise
// the docid's key if it is already present, push it if the heap has room,
// or replace the root if it beats the current worst qualifying entry.
func (h *topKHeap) update(docid primitive.DocID, score uint32) {
	if idx := h.pos[docid]; idx >= 0 {
		h.entries[idx].score = score
		h.fix(int(idx))
		return
	}
	if len(h.entries) < h.cap {
		h.entries = append(h.entries, heapEntry{docid: docid, score: score})
		h.pos[docid] = int32(len(h.entries) - 1)
		h.siftUp(len(h.entries) - 1)
		return
	}
	if h.cap == 0 || score <= h.entries[0].score {
		return
	}
	h.pos[h.entries[0].docid] = -1
	h.entries[0] = heapEntry{docid: docid, score: score}
	h.pos[docid] = 0
	h.siftDown(0)
}
