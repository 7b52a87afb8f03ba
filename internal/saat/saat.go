// Package saat implements the Score-at-a-Time query processor: for one
// query it assembles every matching term's impact segments into a single
// globally sorted run and processes them highest-impact-first until a
// postings budget is exhausted or an early-termination oracle says the
// top-k is already settled.
package saat

import (
	"sort"

	"github.com/impactrank/impactrank/internal/accumulator"
	"github.com/impactrank/impactrank/internal/index"
	"github.com/impactrank/impactrank/internal/oracle"
	"github.com/impactrank/impactrank/internal/primitive"
	"github.com/impactrank/impactrank/internal/queryparser"
)

// BudgetMode selects how Processor computes a query's postings budget.
type BudgetMode int

const (
	// BudgetUnlimited processes every segment regardless of total cost.
	BudgetUnlimited BudgetMode = iota
	// BudgetAbsolute caps postings_processed at a fixed count per query.
	BudgetAbsolute
	// BudgetProportion caps postings_processed at a fraction of the
	// query's total matching postings.
	BudgetProportion
)

// Config bundles the per-query knobs a Processor is constructed with.
type Config struct {
	Mode                 BudgetMode
	PostingsToProcess    uint64
	PostingsProportion   float64
	PostingsToProcessMin uint64
	AccumulatorWidth     uint
	ParserMode           queryparser.Mode
}

// RunStats accumulates counters across every query one Processor handles.
// It is owned by a single worker and merged across workers by the caller
// after all threads have joined.
type RunStats struct {
	QueriesProcessed   uint64
	PostingsProcessed  uint64
	BudgetExhausted    uint64
	OracleEarlyExit    uint64
	MalformedSegments  uint64
	UnrecognisedTerms  uint64
}

// Merge folds other's counters into stats.
func (stats *RunStats) Merge(other RunStats) {
	stats.QueriesProcessed += other.QueriesProcessed
	stats.PostingsProcessed += other.PostingsProcessed
	stats.BudgetExhausted += other.BudgetExhausted
	stats.OracleEarlyExit += other.OracleEarlyExit
	stats.MalformedSegments += other.MalformedSegments
	stats.UnrecognisedTerms += other.UnrecognisedTerms
}

// segment is one entry in a query's globally-sorted run: a term's impact
// segment, still referencing the index's own postings blob.
type segment struct {
	impact           primitive.Impact
	offset, end      uint64
	segmentFrequency uint32
}

// Outcome is everything one Process call produces for a query.
type Outcome struct {
	QueryID           string
	Results           []accumulator.Result
	PostingsProcessed uint64
}

// Processor runs the thirteen-step SaaT sequence for one worker. It owns
// the worker's accumulator engine and a reusable segment scratch buffer;
// neither is reallocated between queries.
type Processor struct {
	reader *index.Reader
	engine accumulator.Engine
	oracle *oracle.Table
	cfg    Config
	maxRSV uint32

	scratch       []segment
	decodeScratch []uint32
	stats         RunStats
}

// New constructs a Processor bound to one worker's accumulator engine.
// reader and oracleTable (may be nil) are shared read-only across workers;
// engine must belong exclusively to this Processor's caller. The decode
// scratch buffer is sized once here, from reader's document count, and
// reused for every segment of every query this Processor ever handles.
func New(reader *index.Reader, engine accumulator.Engine, oracleTable *oracle.Table, cfg Config) *Processor {
	return &Processor{
		reader:        reader,
		engine:        engine,
		oracle:        oracleTable,
		cfg:           cfg,
		maxRSV:        primitive.MaxRSV(cfg.AccumulatorWidth),
		decodeScratch: make([]uint32, index.DecodeScratchLen(reader.DocumentCount())),
	}
}

// Stats returns a snapshot of the counters accumulated so far.
func (p *Processor) Stats() RunStats { return p.stats }

// Process runs the full SaaT sequence over one query line (id + delimiter
// + search text) and returns its top-k outcome. It has no error return:
// missing terms, malformed segments, and budget exhaustion are all normal
// outcomes reflected in the returned Outcome and in Stats.
func (p *Processor) Process(queryLine string) Outcome {
	id, searchText := queryparser.SplitQueryID(queryLine)
	parsed := queryparser.Tokenize(searchText, p.cfg.ParserMode)

	p.scratch = p.scratch[:0]
	var largestPossibleRSV uint64
	var smallestPossibleRSV uint32 = ^uint32(0)
	var totalPostings uint64
	haveTerm := false

	for _, term := range parsed.Terms {
		meta, ok := p.reader.PostingsDetails(term.Text)
		if !ok {
			p.stats.UnrecognisedTerms++
			continue
		}
		headers, smallest, largest, docFreq, err := p.reader.GetSegmentList(meta, term.QueryFrequency)
		if err != nil {
			p.stats.MalformedSegments++
			continue
		}
		haveTerm = true
		largestPossibleRSV += uint64(largest)
		if smallest < smallestPossibleRSV {
			smallestPossibleRSV = smallest
		}
		totalPostings += docFreq
		for _, h := range headers {
			p.scratch = append(p.scratch, segment{impact: h.Impact, offset: h.Offset, end: h.End, segmentFrequency: h.SegmentFrequency})
		}
	}
	if !haveTerm {
		smallestPossibleRSV = 0
	}

	// Rescale lazily: rather than mutating every segment's impact up
	// front, keep a multiplicative scale and apply it when a segment is
	// actually processed.
	scale := 1.0
	if largestPossibleRSV > uint64(p.maxRSV) && largestPossibleRSV > 0 {
		scale = float64(p.maxRSV) / float64(largestPossibleRSV)
		smallestPossibleRSV = uint32(float64(smallestPossibleRSV) * scale)
		if smallestPossibleRSV == 0 {
			smallestPossibleRSV = 1
		}
		largestPossibleRSV = uint64(p.maxRSV)
	}

	// rsvAtK is used exactly as the oracle reports it: it is not rescaled
	// along with the segment impacts above.
	rsvAtK := p.oracle.Lookup(id)

	sort.Slice(p.scratch, func(i, j int) bool {
		if p.scratch[i].impact != p.scratch[j].impact {
			return p.scratch[i].impact > p.scratch[j].impact
		}
		return p.scratch[i].segmentFrequency < p.scratch[j].segmentFrequency
	})

	p.engine.Rewind(smallestPossibleRSV, rsvAtK, uint32(largestPossibleRSV))

	var budget uint64
	switch p.cfg.Mode {
	case BudgetAbsolute:
		budget = p.cfg.PostingsToProcess
	case BudgetProportion:
		budget = uint64(float64(totalPostings) * p.cfg.PostingsProportion)
	default:
		budget = ^uint64(0)
	}

	var postingsProcessed uint64
	budgetExhausted := false
	oracleExit := false
	for _, seg := range p.scratch {
		if postingsProcessed+uint64(seg.segmentFrequency) > budget {
			budgetExhausted = true
			break
		}
		impact := seg.impact
		if scale != 1.0 {
			impact = uint32(float64(impact) * scale)
		}
		h := index.SegmentHeader{Impact: impact, Offset: seg.offset, End: seg.end, SegmentFrequency: seg.segmentFrequency}
		if err := p.reader.DecodeSegment(h, impact, p.decodeScratch, p.engine); err != nil {
			// A malformed segment terminates only itself: behave as if
			// its segment_frequency were zero and keep going.
			p.stats.MalformedSegments++
			continue
		}
		postingsProcessed += uint64(seg.segmentFrequency)

		if rsvAtK > 1 && p.engine.Full() && postingsProcessed >= p.cfg.PostingsToProcessMin {
			oracleExit = true
			break
		}
	}
	if budgetExhausted {
		p.stats.BudgetExhausted++
	}

	if rsvAtK > 1 && !p.engine.Full() {
		p.engine.TopUp()
	}
	if oracleExit {
		p.stats.OracleEarlyExit++
	}

	p.engine.Sort()
	results := p.engine.Iter()

	p.stats.QueriesProcessed++
	p.stats.PostingsProcessed += postingsProcessed

	return Outcome{QueryID: id, Results: results, PostingsProcessed: postingsProcessed}
}
