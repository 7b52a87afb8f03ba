package workerpool_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/impactrank/impactrank/internal/accumulator"
	"github.com/impactrank/impactrank/internal/index"
	"github.com/impactrank/impactrank/internal/queryparser"
	"github.com/impactrank/impactrank/internal/saat"
	"github.com/impactrank/impactrank/internal/workerpool"
)

func u64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }
func u16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

// buildFixture lays out a v1 index with ten documents, primary keys "1".."10",
// and one vocabulary term "one" with a single-docid segment (docid 9, impact 10).
func buildFixture(t *testing.T) index.Paths {
	t.Helper()
	dir := t.TempDir()

	var blob []byte
	offsets := make([]uint64, 10)
	for i := 0; i < 10; i++ {
		offsets[i] = uint64(len(blob))
		blob = append(blob, []byte(strconv.Itoa(i+1))...)
		blob = append(blob, 0)
	}
	var doclist []byte
	doclist = append(doclist, blob...)
	for _, o := range offsets {
		doclist = append(doclist, u64(o)...)
	}
	doclist = append(doclist, u64(10)...)

	var postings []byte
	postings = append(postings, 's')
	onePtr := len(postings)
	postings = append(postings, u64(0)...)
	headerOff := uint64(len(postings))
	postings = append(postings, make([]byte, 22)...)
	payloadOff := uint64(len(postings))
	postings = append(postings, u32(9)...)
	payloadEnd := uint64(len(postings))

	binary.LittleEndian.PutUint64(postings[onePtr:], headerOff)
	copy(postings[headerOff:], u16(10))
	copy(postings[headerOff+2:], u64(payloadOff))
	copy(postings[headerOff+10:], u64(payloadEnd))
	copy(postings[headerOff+18:], u32(1))

	vocabTerms := []byte("one\x00")
	var vocab []byte
	vocab = append(vocab, u64(0)...)
	vocab = append(vocab, u64(uint64(onePtr))...)
	vocab = append(vocab, u64(1)...)

	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	return index.Paths{
		DocList:    write("CIdoclist.bin", doclist),
		Vocab:      write("CIvocab.bin", vocab),
		VocabTerms: write("CIvocab_terms.bin", vocabTerms),
		Postings:   write("CIpostings.bin", postings),
	}
}

func newFactory(r *index.Reader) workerpool.ProcessorFactory {
	return func() (*saat.Processor, error) {
		width := uint(16)
		pageWidth := accumulator.DefaultPageWidth(r.DocumentCount())
		engine := accumulator.New(accumulator.PolicyDense, r.DocumentCount(), 3, width, pageWidth, r.PrimaryKey)
		cfg := saat.Config{Mode: saat.BudgetUnlimited, AccumulatorWidth: width, ParserMode: queryparser.ModeQuery}
		return saat.New(r, engine, nil, cfg), nil
	}
}

func TestEveryQueryClaimedExactlyOnce(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	queries := []string{"Q1 one", "Q2 one", "Q3 one", "Q4 one", "Q5 one"}
	pool := workerpool.New(queries)
	hits, stats, err := workerpool.Run(pool, 3, newFactory(r))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != len(queries) {
		t.Fatalf("got %d hits, want %d (every query claimed exactly once)", len(hits), len(queries))
	}
	if stats.QueriesProcessed != uint64(len(queries)) {
		t.Errorf("stats.QueriesProcessed = %d, want %d", stats.QueriesProcessed, len(queries))
	}
	seen := map[string]bool{}
	for _, h := range hits {
		if seen[h.QueryID] {
			t.Errorf("query id %q claimed more than once", h.QueryID)
		}
		seen[h.QueryID] = true
	}
}

func TestConcurrentOutputMatchesSingleThreaded(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	queries := []string{"Q1 one", "Q2 one", "Q3 one", "Q4 one", "Q5 one"}

	single, _, err := workerpool.Run(workerpool.New(queries), 1, newFactory(r))
	if err != nil {
		t.Fatal(err)
	}
	concurrent, _, err := workerpool.Run(workerpool.New(queries), 3, newFactory(r))
	if err != nil {
		t.Fatal(err)
	}
	if len(single) != len(concurrent) {
		t.Fatalf("single-threaded produced %d hits, concurrent produced %d", len(single), len(concurrent))
	}

	singleByID := map[string]uint32{}
	for _, h := range single {
		if len(h.Results) > 0 {
			singleByID[h.QueryID] = h.Results[0].Score
		}
	}
	concurrentByID := map[string]uint32{}
	for _, h := range concurrent {
		if len(h.Results) > 0 {
			concurrentByID[h.QueryID] = h.Results[0].Score
		}
	}
	ids := make([]string, 0, len(singleByID))
	for id := range singleByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if concurrentByID[id] != singleByID[id] {
			t.Errorf("query %s: single-threaded score %d, concurrent score %d", id, singleByID[id], concurrentByID[id])
		}
	}
}
