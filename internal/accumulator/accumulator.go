// Package accumulator implements the per-document partial-score array and
// the top-k selector built on top of it. Three interchangeable policies
// (dense+heap, dirty-page-max+heap, impact-bucketed) satisfy the same
// external contract; callers choose one at construction time.
package accumulator

import (
	"sort"

	"github.com/impactrank/impactrank/internal/primitive"
)

// Policy selects which top-k implementation New constructs.
type Policy int

const (
	// PolicyDense is the dense-array-plus-min-heap implementation (A).
	PolicyDense Policy = iota
	// PolicyDirtyPage is the dirty-page-max-plus-min-heap implementation (B).
	PolicyDirtyPage
	// PolicyBucketed is the impact-bucketed ring-buffer implementation (C).
	PolicyBucketed
)

// Result is one (docid, primary key, score) triple yielded by Iter.
type Result struct {
	DocID      primitive.DocID
	PrimaryKey string
	Score      uint32
}

// PrimaryKeyFunc resolves a docid to its external primary key string.
type PrimaryKeyFunc func(primitive.DocID) (string, bool)

// Engine is the common contract all three policies satisfy. A single
// Engine instance is owned by exactly one worker for its lifetime and
// rewound between queries; it is never shared across goroutines.
type Engine interface {
	// Rewind prepares the engine for a new query: every accumulator reads
	// zero and the top-k structure is empty. smallestPossibleRSV and
	// largestPossibleRSV bound the range of scores the coming query can
	// produce; rsvAtK is the oracle's predicted minimum score needed to
	// enter the top-k (1 if no oracle hint is available).
	Rewind(smallestPossibleRSV, rsvAtK, largestPossibleRSV uint32)

	// AddWithImpact adds delta to docid's accumulator and folds the new
	// value into the top-k structure. It implements codec.Processor.
	AddWithImpact(docid primitive.DocID, delta primitive.Impact)

	// Full reports whether top_k candidates are available, used by the
	// oracle early-exit check. Policy A reports whether its heap holds
	// top_k entries; policies B and C report whether at least top_k
	// distinct documents have been touched this query.
	Full() bool

	// TopUp fills any remaining top-k slots from the current accumulator
	// state; used when an oracle early-exit left the structure short.
	TopUp()

	// Sort finalises the top-k order. Idempotent: calling it twice without
	// an intervening AddWithImpact produces the same Iter sequence.
	Sort()

	// Iter returns up to top_k results in order of descending score, ties
	// broken by descending docid.
	Iter() []Result
}

// DefaultPageWidth returns ⌈√documentCount⌉ rounded up to the next power
// of two, the default page width for the dirty-page clear protocol.
func DefaultPageWidth(documentCount uint64) int {
	if documentCount == 0 {
		return 1
	}
	sqrt := 1
	for sqrt*sqrt < int(documentCount) {
		sqrt++
	}
	width := 1
	for width < sqrt {
		width <<= 1
	}
	return width
}

// New constructs an Engine using the given policy. pageWidth is only
// consulted by the policies that clear lazily per page (A and B); pass
// DefaultPageWidth(documentCount) unless a caller has a specific reason to
// override it.
func New(policy Policy, documentCount uint64, topK int, accumulatorWidth uint, pageWidth int, primaryKey PrimaryKeyFunc) Engine {
	switch policy {
	case PolicyDirtyPage:
		return newDirtyPageEngine(documentCount, topK, accumulatorWidth, pageWidth, primaryKey)
	case PolicyBucketed:
		return newBucketedEngine(documentCount, topK, accumulatorWidth, primaryKey)
	default:
		return newDenseEngine(documentCount, topK, accumulatorWidth, pageWidth, primaryKey)
	}
}

// pages implements the shared dirty-page lazy-clear protocol used by
// policies A and B: the backing array is logically divided into
// equal-width pages; a page's contents are only meaningful once its dirty
// flag has been cleared on first touch this query.
type pages struct {
	accumulators []uint32
	dirty        []bool
	width        int
}

func newPages(documentCount uint64, width int) pages {
	numPages := (int(documentCount) + width - 1) / width
	if numPages == 0 {
		numPages = 1
	}
	return pages{
		accumulators: make([]uint32, documentCount),
		dirty:        make([]bool, numPages),
		width:        width,
	}
}

func (p *pages) rewind() {
	for i := range p.dirty {
		p.dirty[i] = true
	}
}

// touch clears docid's page if it hasn't been touched yet this query, so
// that docid's accumulator can be read as its pre-add value.
func (p *pages) touch(docid primitive.DocID) {
	page := int(docid) / p.width
	if p.dirty[page] {
		start := page * p.width
		end := start + p.width
		if end > len(p.accumulators) {
			end = len(p.accumulators)
		}
		for i := start; i < end; i++ {
			p.accumulators[i] = 0
		}
		p.dirty[page] = false
	}
}

// finalResults sorts a snapshot of (docid, score) pairs into the output
// order required of Iter: descending score, ties broken by descending
// docid. This is deliberately NOT "pop the min-heap and reverse" — that
// would apply the wrong tie-break direction, since the min-heap's
// (score asc, docid desc) ordering reversed yields (score desc, docid asc)
// on ties, not (score desc, docid desc).
func finalResults(entries []heapEntry, topK int, primaryKey PrimaryKeyFunc) []Result {
	snapshot := make([]heapEntry, len(entries))
	copy(snapshot, entries)
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].score != snapshot[j].score {
			return snapshot[i].score > snapshot[j].score
		}
		return snapshot[i].docid > snapshot[j].docid
	})
	if len(snapshot) > topK {
		snapshot = snapshot[:topK]
	}
	out := make([]Result, len(snapshot))
	for i, e := range snapshot {
		pk, _ := primaryKey(e.docid)
		out[i] = Result{DocID: e.docid, PrimaryKey: pk, Score: e.score}
	}
	return out
}
