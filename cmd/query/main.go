// Command query is the batch driver for the anytime impact-ordered search
// engine: it loads an index, reads a query file, runs every query across a
// worker pool, and writes a TREC run-format result stream.
//
// Usage:
//
//	go run ./cmd/query -index-dir data/ -index-version 2 -queries queries.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/impactrank/impactrank/internal/accumulator"
	"github.com/impactrank/impactrank/internal/index"
	"github.com/impactrank/impactrank/internal/oracle"
	"github.com/impactrank/impactrank/internal/primitive"
	"github.com/impactrank/impactrank/internal/queryparser"
	"github.com/impactrank/impactrank/internal/resultcollector"
	"github.com/impactrank/impactrank/internal/saat"
	"github.com/impactrank/impactrank/internal/workerpool"
	"github.com/impactrank/impactrank/pkg/logger"

	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	indexDir := flag.String("index-dir", ".", "directory containing the four on-disk index files")
	indexVersion := flag.Int("index-version", 2, "on-disk index layout version: 1 or 2")
	queriesPath := flag.String("queries", "", "path to the query file (required)")
	topK := flag.Int("top-k", 10, "number of results per query (max 1000)")
	postingsToProcess := flag.Int64("postings-to-process", 0, "absolute postings budget per query (0 = unlimited)")
	postingsToProcessProportion := flag.Float64("postings-to-process-proportion", 1.0, "fraction of a query's matching postings to process (mutually exclusive with -postings-to-process)")
	postingsToProcessMin := flag.Int64("postings-to-process-min", 0, "oracle early-exit threshold")
	accumulatorWidth := flag.Uint("accumulator-width", 16, "accumulator bit width (max 32)")
	accumulatorPolicy := flag.String("accumulator-policy", "dense", "accumulator policy: dense, dirty-page, or bucketed")
	parserMode := flag.String("parser", "query", "tokeniser mode: query or raw")
	oracleFile := flag.String("oracle", "", "optional oracle file (query-id -> rsv_at_k threshold)")
	threads := flag.Int("threads", 1, "worker thread count")
	tag := flag.String("tag", "impactrank", "TREC run tag")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: json or text")
	flag.Parse()

	logger.Setup(*logLevel, *logFormat)
	log := logger.WithComponent("query")

	if *topK < 0 || *topK > primitive.MaxTopK {
		fmt.Fprintf(os.Stderr, "invalid -top-k %d: must be in [0, %d]\n", *topK, primitive.MaxTopK)
		return apperrors.ExitInvalidOption
	}
	if *accumulatorWidth > primitive.MaxAccumulatorWidth {
		fmt.Fprintf(os.Stderr, "invalid -accumulator-width %d: must be <= %d\n", *accumulatorWidth, primitive.MaxAccumulatorWidth)
		return apperrors.ExitInvalidOption
	}
	if *postingsToProcess != 0 && *postingsToProcessProportion != 1.0 {
		fmt.Fprintln(os.Stderr, "-postings-to-process and -postings-to-process-proportion are mutually exclusive")
		return apperrors.ExitInvalidOption
	}
	if *queriesPath == "" {
		fmt.Fprintln(os.Stderr, "-queries is required")
		return apperrors.ExitInvalidOption
	}
	policy, err := parsePolicy(*accumulatorPolicy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return apperrors.ExitInvalidOption
	}
	mode, err := parseParserMode(*parserMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return apperrors.ExitInvalidOption
	}

	reader, err := index.Load(*indexVersion, index.DefaultPaths(*indexDir))
	if err != nil {
		log.Error("index load failed", "error", err)
		return apperrors.ExitCode(err)
	}
	log.Info("index loaded",
		"documents", reader.DocumentCount(),
		"codec", reader.CodecName(),
		"version", reader.Version(),
	)

	var oracleTable *oracle.Table
	if *oracleFile != "" {
		oracleTable, err = oracle.Load(*oracleFile)
		if err != nil {
			log.Error("oracle load failed", "error", err)
			return apperrors.ExitCode(err)
		}
		log.Info("oracle loaded", "path", *oracleFile)
	}

	queryLines, err := readLines(*queriesPath)
	if err != nil {
		log.Error("query file read failed", "error", err)
		return apperrors.ExitQueryIOFailed
	}

	budgetMode := saat.BudgetUnlimited
	if *postingsToProcess > 0 {
		budgetMode = saat.BudgetAbsolute
	} else if *postingsToProcessProportion != 1.0 {
		budgetMode = saat.BudgetProportion
	}
	cfg := saat.Config{
		Mode:                 budgetMode,
		PostingsToProcess:    uint64(*postingsToProcess),
		PostingsProportion:   *postingsToProcessProportion,
		PostingsToProcessMin: uint64(*postingsToProcessMin),
		AccumulatorWidth:     *accumulatorWidth,
		ParserMode:           mode,
	}
	pageWidth := accumulator.DefaultPageWidth(reader.DocumentCount())
	newProcessor := func() (*saat.Processor, error) {
		engine := accumulator.New(policy, reader.DocumentCount(), *topK, *accumulatorWidth, pageWidth, reader.PrimaryKey)
		return saat.New(reader, engine, oracleTable, cfg), nil
	}

	pool := workerpool.New(queryLines)
	hits, stats, err := workerpool.Run(pool, *threads, newProcessor)
	if err != nil {
		log.Error("worker pool failed", "error", err)
		return apperrors.ExitQueryIOFailed
	}

	w := bufio.NewWriter(os.Stdout)
	for _, h := range hits {
		w.WriteString(resultcollector.FormatTREC(h.QueryID, h.Results, *tag))
	}
	if err := w.Flush(); err != nil {
		log.Error("writing results failed", "error", err)
		return apperrors.ExitQueryIOFailed
	}

	log.Info("run complete",
		"queries", stats.QueriesProcessed,
		"postings_processed", stats.PostingsProcessed,
		"budget_exhausted", stats.BudgetExhausted,
		"oracle_early_exit", stats.OracleEarlyExit,
		"unrecognised_terms", stats.UnrecognisedTerms,
		"malformed_segments", stats.MalformedSegments,
	)
	return apperrors.ExitSuccess
}

func parsePolicy(s string) (accumulator.Policy, error) {
	switch strings.ToLower(s) {
	case "dense":
		return accumulator.PolicyDense, nil
	case "dirty-page":
		return accumulator.PolicyDirtyPage, nil
	case "bucketed":
		return accumulator.PolicyBucketed, nil
	default:
		return 0, fmt.Errorf("unknown accumulator policy %q", s)
	}
}

func parseParserMode(s string) (queryparser.Mode, error) {
	switch strings.ToLower(s) {
	case "query":
		return queryparser.ModeQuery, nil
	case "raw":
		return queryparser.ModeRaw, nil
	default:
		return 0, fmt.Errorf("unknown parser mode %q", s)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
