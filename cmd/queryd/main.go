// Command queryd is the long-running daemon form of the anytime
// impact-ordered search engine: it wraps the same core processing pipeline
// cmd/query drives directly, but takes its queries from a Kafka topic
// instead of a flat file, publishes TREC-formatted results to a results
// topic, caches repeated queries in Redis, archives every hit to Postgres
// for offline evaluation, and exposes Prometheus metrics plus Kubernetes
// health endpoints.
//
// Usage:
//
//	go run ./cmd/queryd configs/development.yaml
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/impactrank/impactrank/internal/accumulator"
	"github.com/impactrank/impactrank/internal/index"
	"github.com/impactrank/impactrank/internal/oracle"
	"github.com/impactrank/impactrank/internal/queryparser"
	"github.com/impactrank/impactrank/internal/resultcollector"
	"github.com/impactrank/impactrank/internal/saat"
	"github.com/impactrank/impactrank/pkg/config"
	apperrors "github.com/impactrank/impactrank/pkg/errors"
	"github.com/impactrank/impactrank/pkg/health"
	"github.com/impactrank/impactrank/pkg/kafka"
	"github.com/impactrank/impactrank/pkg/logger"
	"github.com/impactrank/impactrank/pkg/metrics"
	"github.com/impactrank/impactrank/pkg/postgres"
	pkgredis "github.com/impactrank/impactrank/pkg/redis"
	"github.com/impactrank/impactrank/pkg/resilience"
	"github.com/impactrank/impactrank/pkg/tracing"
)

// queryEvent is the JSON payload published to the query-stream topic.
type queryEvent struct {
	Line string `json:"line"`
}

// resultEvent is the JSON payload published to the result-stream topic and
// cached in Redis.
type resultEvent struct {
	QueryID           string               `json:"query_id"`
	Results           []accumulator.Result `json:"results"`
	PostingsProcessed uint64               `json:"postings_processed"`
	ElapsedNanos      int64                `json:"elapsed_nanos"`
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := "configs/development.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitInvalidOption
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("queryd")
	log.Info("starting query daemon", "index_dir", cfg.Engine.IndexDir, "threads", cfg.Engine.Threads)

	reader, err := index.Load(cfg.Engine.IndexVersion, index.DefaultPaths(cfg.Engine.IndexDir))
	if err != nil {
		log.Error("index load failed", "error", err)
		return apperrors.ExitCode(err)
	}
	log.Info("index loaded", "documents", reader.DocumentCount(), "codec", reader.CodecName())

	var oracleTable *oracle.Table
	if cfg.Engine.OracleFile != "" {
		oracleTable, err = oracle.Load(cfg.Engine.OracleFile)
		if err != nil {
			log.Error("oracle load failed", "error", err)
			return apperrors.ExitCode(err)
		}
	}

	var m *metrics.Metrics
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		log.Info("prometheus metrics enabled", "port", cfg.Metrics.Port)
	}

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, result caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.ResultTTL)
	}

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		log.Warn("postgres unavailable, run archiving disabled", "error", err)
		pg = nil
	} else {
		defer pg.Close()
		if err := ensureArchiveTable(pg); err != nil {
			log.Warn("archive table setup failed, archiving disabled", "error", err)
			pg = nil
		} else {
			log.Info("run archive enabled", "database", cfg.Postgres.Database)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if reader.DocumentCount() > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", reader.DocumentCount())}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "empty index"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pg == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	healthServer := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ResultStream)
	defer producer.Close()

	d := &daemon{
		cfg:          cfg,
		reader:       reader,
		oracleTable:  oracleTable,
		metrics:      m,
		redis:        redisClient,
		pg:           pg,
		producer:     producer,
		log:          log,
		redisBreaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{}),
	}

	threads := cfg.Engine.Threads
	if threads < 1 {
		threads = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryStream, d.handle)
		wg.Add(1)
		go func(c *kafka.Consumer) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				log.Error("consumer stopped with error", "error", err)
			}
		}(consumer)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown error", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", "error", err)
		}
	}
	log.Info("query daemon stopped")
	return apperrors.ExitSuccess
}

// daemon holds the state every worker goroutine shares: the loaded index,
// the oracle table, and the ambient clients. Each call to handle runs one
// saat.Processor invocation over its own freshly-built accumulator.Engine;
// no engine state is shared across concurrent handle calls, so no
// additional locking is needed around Process itself.
type daemon struct {
	cfg         *config.Config
	reader      *index.Reader
	oracleTable *oracle.Table
	metrics     *metrics.Metrics
	redis       *pkgredis.Client
	pg          *postgres.Client
	producer    *kafka.Producer
	log         *slog.Logger

	group        singleflight.Group
	redisBreaker *resilience.CircuitBreaker
}

// handle is the per-message Kafka MessageHandler. It is invoked sequentially
// by whichever consumer goroutine owns the partition the message landed on.
// Concurrent identical queries across goroutines are deduplicated through
// the singleflight group keyed on the cache key (query line, top-k and
// accumulator policy), exactly as the
// teacher's query cache collapses concurrent duplicate lookups.
func (d *daemon) handle(ctx context.Context, key []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[queryEvent](value)
	if err != nil {
		d.log.Warn("dropping malformed query event", "error", err)
		return nil
	}

	traceID := string(key)
	if traceID == "" {
		traceID = ev.Line
	}
	ctx, span := tracing.StartSpan(ctx, "handle_query", traceID)
	defer func() {
		span.End()
		span.Log()
	}()

	cacheKey := fmt.Sprintf("result:%s:%d:%s", ev.Line, d.cfg.Engine.TopK, d.cfg.Engine.AccumulatorPolicy)
	span.SetAttr("cache_key", cacheKey)

	v, err, _ := d.group.Do(cacheKey, func() (any, error) {
		if d.redis != nil {
			var lines string
			getErr := d.redisBreaker.Execute(func() error {
				var err error
				lines, err = d.redis.Get(ctx, cacheKey)
				return err
			})
			d.recordBreakerState()
			if getErr == nil {
				if d.metrics != nil {
					d.metrics.CacheHitsTotal.Inc()
					d.metrics.QueriesTotal.WithLabelValues("cache_hit").Inc()
				}
				return lines, nil
			} else if !pkgredis.IsNilError(getErr) && !errors.Is(getErr, resilience.ErrCircuitOpen) {
				d.log.Warn("redis get failed", "error", getErr)
			}
		}
		if d.metrics != nil {
			d.metrics.CacheMissesTotal.Inc()
		}
		re := d.process(ctx, ev.Line)
		if d.redis != nil {
			lines := resultcollector.FormatTREC(re.QueryID, re.Results, d.cfg.Engine.Tag)
			setErr := d.redisBreaker.Execute(func() error {
				return d.redis.Set(ctx, cacheKey, lines, d.cfg.Redis.ResultTTL)
			})
			d.recordBreakerState()
			if setErr != nil {
				d.log.Warn("redis set failed", "error", setErr)
			}
		}
		if d.pg != nil {
			d.archive(ctx, re)
		}
		if d.metrics != nil {
			outcome := "ok"
			if len(re.Results) == 0 {
				outcome = "empty"
			}
			d.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
		}
		return d.publishAndReturn(ctx, re)
	})
	if err != nil {
		return err
	}
	_ = v
	return nil
}

// recordBreakerState publishes the Redis circuit breaker's current state to
// the gauge metrics expose, so "breaker tripped" is visible without
// scraping logs.
func (d *daemon) recordBreakerState() {
	if d.metrics == nil {
		return
	}
	d.metrics.CircuitBreakerState.WithLabelValues("redis-cache").Set(float64(d.redisBreaker.GetState()))
}

// publishAndReturn publishes re to the result-stream topic and returns it
// so the singleflight call site can reuse the value for the TREC line shape
// without re-running the query.
func (d *daemon) publishAndReturn(ctx context.Context, re resultEvent) (resultEvent, error) {
	_, span := tracing.StartChildSpan(ctx, "publish")
	defer span.End()
	err := resilience.Retry(ctx, "kafka-publish", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return d.producer.Publish(ctx, kafka.Event{Key: re.QueryID, Value: re})
	})
	return re, err
}

func (d *daemon) process(ctx context.Context, line string) resultEvent {
	_, span := tracing.StartChildSpan(ctx, "process_query")
	defer span.End()

	width := d.cfg.Engine.AccumulatorWidth
	policy := policyFromString(d.cfg.Engine.AccumulatorPolicy)
	pageWidth := accumulator.DefaultPageWidth(d.reader.DocumentCount())
	engine := accumulator.New(policy, d.reader.DocumentCount(), d.cfg.Engine.TopK, width, pageWidth, d.reader.PrimaryKey)

	mode := saat.BudgetUnlimited
	if d.cfg.Engine.PostingsToProcess > 0 {
		mode = saat.BudgetAbsolute
	} else if d.cfg.Engine.PostingsToProcessProportion != 1.0 {
		mode = saat.BudgetProportion
	}
	saatCfg := saat.Config{
		Mode:                 mode,
		PostingsToProcess:    uint64(d.cfg.Engine.PostingsToProcess),
		PostingsProportion:   d.cfg.Engine.PostingsToProcessProportion,
		PostingsToProcessMin: uint64(d.cfg.Engine.PostingsToProcessMin),
		AccumulatorWidth:     width,
		ParserMode:           queryparser.ModeQuery,
	}
	proc := saat.New(d.reader, engine, d.oracleTable, saatCfg)

	var timer resultcollector.Timer
	timer.Start()
	out := proc.Process(line)
	elapsed := timer.Stop()

	if d.metrics != nil {
		// proc is built fresh for this message, so its stats cover this query only.
		stats := proc.Stats()
		d.metrics.QueryLatency.WithLabelValues(d.cfg.Engine.AccumulatorPolicy).Observe(float64(elapsed) / 1e9)
		d.metrics.ResultsPerQuery.Observe(float64(len(out.Results)))
		d.metrics.PostingsProcessed.Add(float64(out.PostingsProcessed))
		d.metrics.BudgetExhaustedTotal.Add(float64(stats.BudgetExhausted))
		d.metrics.OracleEarlyExitTotal.Add(float64(stats.OracleEarlyExit))
		d.metrics.MalformedSegments.Add(float64(stats.MalformedSegments))
	}
	span.SetAttr("postings_processed", out.PostingsProcessed)
	span.SetAttr("results", len(out.Results))
	return resultEvent{
		QueryID:           out.QueryID,
		Results:           out.Results,
		PostingsProcessed: out.PostingsProcessed,
		ElapsedNanos:      elapsed,
	}
}

// ensureArchiveTable creates the run-archive table if it does not already
// exist.
func ensureArchiveTable(pg *postgres.Client) error {
	_, err := pg.DB.Exec(`
		CREATE TABLE IF NOT EXISTS run_archive (
			query_id           TEXT NOT NULL,
			rank               INTEGER NOT NULL,
			docid              BIGINT NOT NULL,
			primary_key        TEXT NOT NULL,
			score              BIGINT NOT NULL,
			postings_processed BIGINT NOT NULL,
			elapsed_ns         BIGINT NOT NULL,
			tag                TEXT NOT NULL,
			recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// archive writes one row per returned hit to the run_archive table inside a
// single transaction, for offline TREC evaluation.
func (d *daemon) archive(ctx context.Context, re resultEvent) {
	ctx, span := tracing.StartChildSpan(ctx, "archive")
	defer span.End()
	err := resilience.WithTimeout(ctx, 5*time.Second, "postgres-archive", func(ctx context.Context) error {
		return d.pg.InTx(ctx, func(tx *sql.Tx) error {
			for rank, r := range re.Results {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO run_archive
						(query_id, rank, docid, primary_key, score, postings_processed, elapsed_ns, tag)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				`, re.QueryID, rank+1, int64(r.DocID), r.PrimaryKey, int64(r.Score), int64(re.PostingsProcessed), re.ElapsedNanos, d.cfg.Engine.Tag)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		d.log.Warn("archive write failed", "query_id", re.QueryID, "error", err)
	}
}

func policyFromString(s string) accumulator.Policy {
	switch s {
	case "dirty-page":
		return accumulator.PolicyDirtyPage
	case "bucketed":
		return accumulator.PolicyBucketed
	default:
		return accumulator.PolicyDense
	}
}
