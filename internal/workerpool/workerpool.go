// Package workerpool runs a batch of queries across N worker goroutines,
// each claiming queries from a shared CAS-guarded queue and running the
// SaaT query processor to completion with its own exclusively-owned
// accumulator state.
package workerpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/impactrank/impactrank/internal/resultcollector"
	"github.com/impactrank/impactrank/internal/saat"
)

// query is one line of the input query file plus its claim flag. claimed
// is the only state workers mutate concurrently; it is touched only
// through CompareAndSwap.
type query struct {
	text    string
	claimed atomic.Bool
}

// Pool is a CAS-claimed work queue over a fixed set of query lines. It is
// built once per batch run and consumed by Run; it is not reusable across
// batches.
type Pool struct {
	queries []*query
	cursor  atomic.Int64
}

// New builds a Pool over queryLines, one query per line, unclaimed.
func New(queryLines []string) *Pool {
	qs := make([]*query, len(queryLines))
	for i, l := range queryLines {
		qs[i] = &query{text: l}
	}
	return &Pool{queries: qs}
}

// next sweeps forward from the shared cursor, CAS-claiming the first
// unclaimed query. Go's atomic CompareAndSwap is strong (it never fails
// spuriously on a value that matched), so unlike the source protocol's
// retry-before-advancing rule, a failed CAS here always means a genuine
// claim by another worker, and the sweep advances past it directly.
func (p *Pool) next() (string, bool) {
	for {
		i := p.cursor.Load()
		if int(i) >= len(p.queries) {
			return "", false
		}
		q := p.queries[i]
		if q.claimed.CompareAndSwap(false, true) {
			p.cursor.CompareAndSwap(i, i+1)
			return q.text, true
		}
		p.cursor.CompareAndSwap(i, i+1)
	}
}

// ProcessorFactory builds one worker's exclusively-owned SaaT processor.
// It is called once per worker, never per query.
type ProcessorFactory func() (*saat.Processor, error)

// Run spawns threadCount workers, each repeatedly claiming a query from
// the pool and running it to completion, until the pool is drained. The
// returned error is non-nil only if a worker failed to construct its
// processor; it never reflects query content (a malformed query, an empty
// result, or budget exhaustion are all normal outcomes already folded into
// the returned hits and stats).
func Run(pool *Pool, threadCount int, newProcessor ProcessorFactory) ([]resultcollector.Hit, saat.RunStats, error) {
	if threadCount < 1 {
		threadCount = 1
	}

	var (
		mu       sync.Mutex
		allHits  []resultcollector.Hit
		allStats saat.RunStats
	)

	g := new(errgroup.Group)
	for w := 0; w < threadCount; w++ {
		g.Go(func() error {
			proc, err := newProcessor()
			if err != nil {
				return fmt.Errorf("worker setup: %w", err)
			}

			var hits []resultcollector.Hit
			for {
				text, ok := pool.next()
				if !ok {
					break
				}
				var timer resultcollector.Timer
				timer.Start()
				outcome := proc.Process(text)
				elapsed := timer.Stop()
				hits = append(hits, resultcollector.Hit{
					QueryID:           outcome.QueryID,
					QueryText:         text,
					Results:           outcome.Results,
					PostingsProcessed: outcome.PostingsProcessed,
					ElapsedNanos:      elapsed,
				})
			}

			mu.Lock()
			allHits = append(allHits, hits...)
			allStats.Merge(proc.Stats())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, saat.RunStats{}, err
	}
	return allHits, allStats, nil
}
