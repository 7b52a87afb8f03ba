package accumulator

import "github.com/impactrank/impactrank/internal/primitive"

const invalidDocID = ^primitive.DocID(0)

// bucketedEngine is Policy C: one ring buffer per possible accumulator
// value records the most recent documents to reach that score. Sort walks
// buckets from the highest score down, skipping ring entries whose
// accumulator no longer matches the bucket they were recorded under (the
// document's score has since been promoted to a higher bucket).
//
// Unlike policies A and B, staleness here spans queries as well as
// promotions within one query: because clearing a full-width accumulator
// array per query would cost O(document_count), each accumulator instead
// carries a generation stamp, bumped once (O(1)) on Rewind. An entry is
// live only if its generation matches the current query's.
type bucketedEngine struct {
	accumulators []uint32
	gen          []uint32
	currentGen   uint32
	ring         [][]primitive.DocID
	cursor       []int
	ringSize     int
	maxRSV       uint32
	topK         int
	primaryKey   PrimaryKeyFunc
	sorted       []heapEntry
	distinctSeen int
}

func newBucketedEngine(documentCount uint64, topK int, width uint, primaryKey PrimaryKeyFunc) *bucketedEngine {
	maxRSV := primitive.MaxRSV(width)
	numBuckets := int(maxRSV) + 1
	ringSize := 1
	for ringSize < topK {
		ringSize <<= 1
	}
	if ringSize == 0 {
		ringSize = 1
	}
	ring := make([][]primitive.DocID, numBuckets)
	for i := range ring {
		ring[i] = make([]primitive.DocID, ringSize)
		for j := range ring[i] {
			ring[i][j] = invalidDocID
		}
	}
	return &bucketedEngine{
		accumulators: make([]uint32, documentCount),
		gen:          make([]uint32, documentCount),
		ring:         ring,
		cursor:       make([]int, numBuckets),
		ringSize:     ringSize,
		maxRSV:       maxRSV,
		topK:         topK,
		primaryKey:   primaryKey,
	}
}

func (e *bucketedEngine) Rewind(_, _, _ uint32) {
	e.currentGen++
	e.sorted = nil
	e.distinctSeen = 0
}

func (e *bucketedEngine) AddWithImpact(docid primitive.DocID, delta primitive.Impact) {
	if e.gen[docid] != e.currentGen {
		e.gen[docid] = e.currentGen
		e.accumulators[docid] = 0
		e.distinctSeen++
	}
	v := e.accumulators[docid] + uint32(delta)
	if v > e.maxRSV {
		v = e.maxRSV
	}
	e.accumulators[docid] = v
	c := e.cursor[v]
	e.ring[v][c] = docid
	e.cursor[v] = (c + 1) % e.ringSize
}

// Full reports whether at least top_k distinct documents have been touched
// this query. Sort has not necessarily run yet — this tracks candidate
// count, not the materialised top-k order, which is exactly what the
// oracle early-exit check (spec.md §4.5 step 10) needs.
func (e *bucketedEngine) Full() bool {
	return e.distinctSeen >= e.topK
}

func (e *bucketedEngine) TopUp() {
	e.Sort()
}

func (e *bucketedEngine) live(docid primitive.DocID, bucket uint32) bool {
	return e.gen[docid] == e.currentGen && e.accumulators[docid] == bucket
}

func (e *bucketedEngine) Sort() {
	seen := make(map[primitive.DocID]struct{}, e.topK)
	collected := make([]heapEntry, 0, e.topK)

	for b := len(e.ring) - 1; b >= 0 && len(collected) < e.topK; b-- {
		bucket := uint32(b)
		var inBucket []primitive.DocID
		for _, docid := range e.ring[b] {
			if docid == invalidDocID {
				continue
			}
			if _, dup := seen[docid]; dup {
				continue
			}
			if !e.live(docid, bucket) {
				continue
			}
			seen[docid] = struct{}{}
			inBucket = append(inBucket, docid)
		}
		// Ties within a bucket are broken by descending docid, matching
		// the overall output order.
		for i := 1; i < len(inBucket); i++ {
			for j := i; j > 0 && inBucket[j] > inBucket[j-1]; j-- {
				inBucket[j], inBucket[j-1] = inBucket[j-1], inBucket[j]
			}
		}
		for _, docid := range inBucket {
			if len(collected) >= e.topK {
				break
			}
			collected = append(collected, heapEntry{docid: docid, score: bucket})
		}
	}
	e.sorted = collected
}

func (e *bucketedEngine) Iter() []Result {
	return finalResults(e.sorted, e.topK, e.primaryKey)
}
