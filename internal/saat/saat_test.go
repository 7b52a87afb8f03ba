package saat_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/impactrank/impactrank/internal/accumulator"
	"github.com/impactrank/impactrank/internal/index"
	"github.com/impactrank/impactrank/internal/oracle"
	"github.com/impactrank/impactrank/internal/queryparser"
	"github.com/impactrank/impactrank/internal/saat"
)

func u64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }
func u16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

// buildFixture lays out a v1 index with ten documents, primary keys "1".."10",
// and two vocabulary terms:
//   - "one": one segment, impact 10, docid 9 ("10")
//   - "two": one segment, impact 6, docids 7,9 ("8","10") in ascending order
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
	// pointer table for "one" at offset 1 (1 entry)
	onePtr := len(postings)
	postings = append(postings, u64(0)...) // placeholder, patched below
	// pointer table for "two" at offset 9 (1 entry)
	twoPtr := len(postings)
	postings = append(postings, u64(0)...) // placeholder

	oneHeaderOff := uint64(len(postings))
	postings = append(postings, make([]byte, 22)...) // placeholder segment header for "one"
	twoHeaderOff := uint64(len(postings))
	postings = append(postings, make([]byte, 22)...) // placeholder segment header for "two"

	onePayloadOff := uint64(len(postings))
	postings = append(postings, u32(9)...) // absolute docid 9
	onePayloadEnd := uint64(len(postings))

	twoPayloadOff := uint64(len(postings))
	postings = append(postings, u32(7)...) // absolute docid 7
	postings = append(postings, u32(2)...) // gap: 9-7=2
	twoPayloadEnd := uint64(len(postings))

	// patch pointer tables
	binary.LittleEndian.PutUint64(postings[onePtr:], oneHeaderOff)
	binary.LittleEndian.PutUint64(postings[twoPtr:], twoHeaderOff)

	// patch segment headers: impact u16, offset u64, end u64, freq u32
	writeHeader := func(at uint64, impact uint16, offset, end uint64, freq uint32) {
		copy(postings[at:], u16(impact))
		copy(postings[at+2:], u64(offset))
		copy(postings[at+10:], u64(end))
		copy(postings[at+18:], u32(freq))
	}
	writeHeader(oneHeaderOff, 10, onePayloadOff, onePayloadEnd, 1)
	writeHeader(twoHeaderOff, 6, twoPayloadOff, twoPayloadEnd, 2)

	vocabTerms := []byte("one\x00two\x00")
	var vocab []byte
	vocab = append(vocab, u64(0)...)                  // "one" term_offset
	vocab = append(vocab, u64(uint64(onePtr))...)     // postings_offset -> pointer table
	vocab = append(vocab, u64(1)...)                  // impacts (segment count)
	vocab = append(vocab, u64(4)...)                  // "two" term_offset
	vocab = append(vocab, u64(uint64(twoPtr))...)     // postings_offset -> pointer table
	vocab = append(vocab, u64(1)...)                  // impacts

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

func newProcessor(t *testing.T, reader *index.Reader, topK int) *saat.Processor {
	t.Helper()
	width := uint(16)
	pageWidth := accumulator.DefaultPageWidth(reader.DocumentCount())
	engine := accumulator.New(accumulator.PolicyDense, reader.DocumentCount(), topK, width, pageWidth, reader.PrimaryKey)
	cfg := saat.Config{Mode: saat.BudgetUnlimited, AccumulatorWidth: width, ParserMode: queryparser.ModeQuery}
	return saat.New(reader, engine, nil, cfg)
}

func TestProcessSingleTerm(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, r, 3)
	out := p.Process("Q1 one")
	if out.QueryID != "Q1" {
		t.Fatalf("query id = %q, want Q1", out.QueryID)
	}
	if len(out.Results) != 1 || out.Results[0].PrimaryKey != "10" || out.Results[0].Score != 10 {
		t.Fatalf("results = %+v, want one hit (10, score 10)", out.Results)
	}
	if out.PostingsProcessed != 1 {
		t.Fatalf("postings processed = %d, want 1", out.PostingsProcessed)
	}
}

func TestProcessMultiTerm(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, r, 3)
	out := p.Process("Q2 one two")
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}
	if out.Results[0].PrimaryKey != "10" || out.Results[0].Score != 16 {
		t.Errorf("result[0] = %+v, want (10, score 16)", out.Results[0])
	}
	if out.Results[1].PrimaryKey != "8" || out.Results[1].Score != 6 {
		t.Errorf("result[1] = %+v, want (8, score 6)", out.Results[1])
	}
	if out.PostingsProcessed != 3 {
		t.Errorf("postings processed = %d, want 3", out.PostingsProcessed)
	}
}

func TestProcessUnknownTerm(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, r, 3)
	out := p.Process("Q4 unknown_term")
	if len(out.Results) != 0 {
		t.Fatalf("got %d results, want 0", len(out.Results))
	}
	if out.PostingsProcessed != 0 {
		t.Errorf("postings processed = %d, want 0", out.PostingsProcessed)
	}
}

func TestProcessDuplicateTermDoublesImpact(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, r, 3)
	out := p.Process("Q5 one one")
	if len(out.Results) != 1 || out.Results[0].Score != 20 {
		t.Fatalf("results = %+v, want one hit with score 20", out.Results)
	}
}

func TestProcessZeroBudget(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	width := uint(16)
	pageWidth := accumulator.DefaultPageWidth(r.DocumentCount())
	engine := accumulator.New(accumulator.PolicyDense, r.DocumentCount(), 3, width, pageWidth, r.PrimaryKey)
	cfg := saat.Config{Mode: saat.BudgetAbsolute, PostingsToProcess: 0, AccumulatorWidth: width, ParserMode: queryparser.ModeQuery}
	p := saat.New(r, engine, nil, cfg)
	out := p.Process("Q1 one")
	if len(out.Results) != 0 {
		t.Fatalf("got %d results with zero budget, want 0", len(out.Results))
	}
}

func writeOracle(t *testing.T, entries map[string]int) *oracle.Table {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.txt")
	var buf []byte
	for id, rsv := range entries {
		buf = append(buf, []byte(id)...)
		buf = append(buf, ' ')
		buf = append(buf, []byte(strconv.Itoa(rsv))...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := oracle.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

// TestOracleEarlyExit exercises spec.md §4.5 step 10 across all three
// accumulator policies: "one" (impact 10, docid 9) sorts ahead of "two"
// (impact 6, docids 7 and 9), so with top_k=1 and an oracle threshold
// above 1, Full() must already be true after the first segment and the
// second term's segment must never be decoded.
func TestOracleEarlyExit(t *testing.T) {
	policies := []struct {
		name   string
		policy accumulator.Policy
	}{
		{"dense", accumulator.PolicyDense},
		{"dirtypage", accumulator.PolicyDirtyPage},
		{"bucketed", accumulator.PolicyBucketed},
	}

	for _, tc := range policies {
		t.Run(tc.name, func(t *testing.T) {
			r, err := index.Load(1, buildFixture(t))
			if err != nil {
				t.Fatal(err)
			}
			width := uint(16)
			pageWidth := accumulator.DefaultPageWidth(r.DocumentCount())
			engine := accumulator.New(tc.policy, r.DocumentCount(), 1, width, pageWidth, r.PrimaryKey)
			table := writeOracle(t, map[string]int{"Q1": 2})
			cfg := saat.Config{
				Mode:                 saat.BudgetUnlimited,
				PostingsToProcessMin: 1,
				AccumulatorWidth:     width,
				ParserMode:           queryparser.ModeQuery,
			}
			p := saat.New(r, engine, table, cfg)
			out := p.Process("Q1 one two")

			if out.PostingsProcessed != 1 {
				t.Fatalf("postings processed = %d, want 1 (oracle should have cut off before \"two\")", out.PostingsProcessed)
			}
			if len(out.Results) != 1 || out.Results[0].PrimaryKey != "10" || out.Results[0].Score != 10 {
				t.Fatalf("results = %+v, want one hit (10, score 10)", out.Results)
			}
			stats := p.Stats()
			if stats.OracleEarlyExit != 1 {
				t.Fatalf("oracle early exit count = %d, want 1", stats.OracleEarlyExit)
			}
			if stats.BudgetExhausted != 0 {
				t.Fatalf("budget exhausted count = %d, want 0", stats.BudgetExhausted)
			}
		})
	}
}

func TestStatsAccumulate(t *testing.T) {
	r, err := index.Load(1, buildFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, r, 3)
	p.Process("Q1 one")
	p.Process("Q2 one two")
	stats := p.Stats()
	if stats.QueriesProcessed != 2 {
		t.Fatalf("queries processed = %d, want 2", stats.QueriesProcessed)
	}
	if stats.PostingsProcessed != 4 {
		t.Fatalf("postings processed = %d, want 4", stats.PostingsProcessed)
	}
}
