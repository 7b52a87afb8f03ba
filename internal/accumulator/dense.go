package accumulator

import "github.com/impactrank/impactrank/internal/primitive"

// denseEngine is Policy A: a dense per-document accumulator array paired
// with a min-heap that is kept up to date on every AddWithImpact call.
type denseEngine struct {
	pages      pages
	heap       *topKHeap
	topK       int
	maxRSV     uint32
	primaryKey PrimaryKeyFunc
}

func newDenseEngine(documentCount uint64, topK int, width uint, pageWidth int, primaryKey PrimaryKeyFunc) *denseEngine {
	return &denseEngine{
		pages:      newPages(documentCount, pageWidth),
		heap:       newTopKHeap(documentCount, topK),
		topK:       topK,
		maxRSV:     primitive.MaxRSV(width),
		primaryKey: primaryKey,
	}
}

func (e *denseEngine) Rewind(_, _, _ uint32) {
	e.pages.rewind()
	e.heap.reset()
}

func (e *denseEngine) AddWithImpact(docid primitive.DocID, delta primitive.Impact) {
	e.pages.touch(docid)
	v := e.pages.accumulators[docid] + uint32(delta)
	if v > e.maxRSV {
		v = e.maxRSV
	}
	e.pages.accumulators[docid] = v
	e.heap.update(docid, v)
}

func (e *denseEngine) Full() bool {
	return e.heap.full()
}

func (e *denseEngine) TopUp() {
	// The dense engine's heap is always current: every accumulator write
	// is folded in immediately, so there is nothing left to top up.
}

func (e *denseEngine) Sort() {
	// The heap is already the authoritative top-k set; finalResults does
	// the one-time re-sort into output order on demand from Iter.
}

func (e *denseEngine) Iter() []Result {
	return finalResults(e.heap.entries, e.topK, e.primaryKey)
}
