package accumulator

import (
	"sort"

	"github.com/impactrank/impactrank/internal/primitive"
)

// dirtyPageEngine is Policy B: accumulators are never inspected one at a
// time during AddWithImpact; only a per-page running maximum is kept up
// to date. The top-k set itself is only materialised in Sort, which walks
// pages in descending order of their maximum and stops as soon as no
// remaining page's maximum could still beat the current top-k's worst
// member.
type dirtyPageEngine struct {
	pages        pages
	pageMax      []uint32
	topK         int
	maxRSV       uint32
	primaryKey   PrimaryKeyFunc
	sorted       []heapEntry
	distinctSeen int
}

func newDirtyPageEngine(documentCount uint64, topK int, width uint, pageWidth int, primaryKey PrimaryKeyFunc) *dirtyPageEngine {
	p := newPages(documentCount, pageWidth)
	return &dirtyPageEngine{
		pages:      p,
		pageMax:    make([]uint32, len(p.dirty)),
		topK:       topK,
		maxRSV:     primitive.MaxRSV(width),
		primaryKey: primaryKey,
	}
}

func (e *dirtyPageEngine) Rewind(_, _, _ uint32) {
	e.pages.rewind()
	for i := range e.pageMax {
		e.pageMax[i] = 0
	}
	e.sorted = nil
	e.distinctSeen = 0
}

func (e *dirtyPageEngine) AddWithImpact(docid primitive.DocID, delta primitive.Impact) {
	e.pages.touch(docid)
	if e.pages.accumulators[docid] == 0 {
		e.distinctSeen++
	}
	v := e.pages.accumulators[docid] + uint32(delta)
	if v > e.maxRSV {
		v = e.maxRSV
	}
	e.pages.accumulators[docid] = v
	page := int(docid) / e.pages.width
	if v > e.pageMax[page] {
		e.pageMax[page] = v
	}
}

// Full reports whether at least top_k distinct documents have contributed
// to the accumulator so far this query. Sort has not necessarily run yet —
// this tracks candidate count, not the materialised top-k order, which is
// exactly what the oracle early-exit check (spec.md §4.5 step 10) needs.
func (e *dirtyPageEngine) Full() bool {
	return e.distinctSeen >= e.topK
}

func (e *dirtyPageEngine) TopUp() {
	e.Sort()
}

func (e *dirtyPageEngine) Sort() {
	order := make([]int, 0, len(e.pageMax))
	for p, max := range e.pageMax {
		if max > 0 {
			order = append(order, p)
		}
	}
	sort.Slice(order, func(i, j int) bool { return e.pageMax[order[i]] > e.pageMax[order[j]] })

	heap := newTopKHeap(uint64(len(e.pages.accumulators)), e.topK)
	for _, page := range order {
		if heap.full() && e.pageMax[page] <= heap.root().score {
			break
		}
		start := page * e.pages.width
		end := start + e.pages.width
		if end > len(e.pages.accumulators) {
			end = len(e.pages.accumulators)
		}
		for doc := start; doc < end; doc++ {
			v := e.pages.accumulators[doc]
			if v == 0 {
				continue
			}
			heap.update(primitive.DocID(doc), v)
		}
	}
	e.sorted = append([]heapEntry(nil), heap.entries...)
}

func (e *dirtyPageEngine) Iter() []Result {
	return finalResults(e.sorted, e.topK, e.primaryKey)
}
