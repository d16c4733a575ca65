// Package dispatcher implements the Engine: owns a set of sources and a
// parser, spawns one reader worker per source, and fans parsed records into
// a single bounded output channel while updating analytics along the way.
package dispatcher

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/mdzesseis/logstream/internal/analytics"
	"github.com/mdzesseis/logstream/internal/ingest"
	"github.com/mdzesseis/logstream/internal/metrics"
	"github.com/mdzesseis/logstream/internal/parser"
)

// Config tunes the Engine's batching and backpressure behavior.
type Config struct {
	// OutputChannelCapacity bounds the output channel; default 100.
	OutputChannelCapacity int
	// BatchSize is the number of lines a worker accumulates before parsing
	// them concurrently; default 100.
	BatchSize int
}

// DefaultConfig returns the configuration spec §6 names as defaults.
func DefaultConfig() Config {
	return Config{OutputChannelCapacity: 100, BatchSize: 100}
}

// Engine coordinates sources, a parser, and analytics.
type Engine struct {
	config    Config
	parser    parser.Parser
	analytics *analytics.State
	logger    *logrus.Logger
	metrics   *metrics.Registry
	tracer    oteltrace.Tracer

	mu      sync.Mutex
	sources []ingest.Source
	started bool
}

// NewEngine constructs an Engine. p is typically a *parser.ParserRegistry.
// tracer may be nil, in which case batch-parse spans are started against a
// no-op tracer.
func NewEngine(config Config, p parser.Parser, state *analytics.State, logger *logrus.Logger, reg *metrics.Registry, tracer oteltrace.Tracer) *Engine {
	if config.OutputChannelCapacity <= 0 {
		config.OutputChannelCapacity = 100
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if tracer == nil {
		tracer = otel.Tracer("noop")
	}
	return &Engine{
		config:    config,
		parser:    p,
		analytics: state,
		logger:    logger,
		metrics:   reg,
		tracer:    tracer,
	}
}

// AddSource appends a source to the pending set. Legal only before Run.
func (e *Engine) AddSource(s ingest.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		e.logger.Warn("dispatcher: AddSource called after Run, ignoring")
		return
	}
	e.sources = append(e.sources, s)
}

// Run takes ownership of all pending sources, spawns one worker per source,
// and returns the consumer-side output channel. The channel closes once
// every worker has exited, which happens either because every source ran
// out of input or failed, or because ctx was canceled.
func (e *Engine) Run(ctx context.Context) <-chan parser.ParsedLog {
	e.mu.Lock()
	sources := e.sources
	e.sources = nil
	e.started = true
	e.mu.Unlock()

	out := make(chan parser.ParsedLog, e.config.OutputChannelCapacity)

	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(s ingest.Source) {
			defer wg.Done()
			e.runWorker(ctx, s, out)
		}(source)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (e *Engine) runWorker(ctx context.Context, source ingest.Source, out chan<- parser.ParsedLog) {
	log := e.logger.WithField("source", source.Label())

	if err := source.Init(ctx); err != nil {
		log.WithError(err).Error("dispatcher: source init failed, worker exiting")
		if e.metrics != nil {
			e.metrics.IncSourceErrors(source.Label())
		}
		return
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.WithError(err).Warn("dispatcher: source close failed")
		}
	}()

	batch := make([]ingest.LogLine, 0, e.config.BatchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		ok := e.processBatch(ctx, batch, out, log)
		batch = batch[:0]
		return ok
	}

	for {
		line, err := source.ReadLine(ctx)
		if err != nil {
			if !flush() {
				return
			}
			if err != io.EOF {
				log.WithError(err).Warn("dispatcher: source errored, worker exiting")
				if e.metrics != nil {
					e.metrics.IncSourceErrors(source.Label())
				}
			} else {
				log.WithError(err).Debug("dispatcher: source exhausted")
			}
			return
		}

		batch = append(batch, line)
		if len(batch) >= e.config.BatchSize {
			if !flush() {
				return
			}
		}
	}
}

// processBatch parses every line in the batch concurrently, preserving
// input order in the results, then updates analytics and sends each
// successful record in order. It reports false if ctx is canceled while a
// record is waiting to be sent, signaling the caller to stop.
func (e *Engine) processBatch(ctx context.Context, batch []ingest.LogLine, out chan<- parser.ParsedLog, log *logrus.Entry) bool {
	ctx, span := e.tracer.Start(ctx, "dispatcher.process_batch",
		oteltrace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveBatchDuration(time.Since(start))
		}
	}()

	results := make([]parseResult, len(batch))

	var wg sync.WaitGroup
	for i, line := range batch {
		wg.Add(1)
		go func(i int, line ingest.LogLine) {
			defer wg.Done()
			parsed, err := e.parser.Parse(ctx, line)
			results[i] = parseResult{parsed: parsed, err: err}
		}(i, line)
	}
	wg.Wait()

	for _, result := range results {
		if result.err != nil {
			log.WithError(result.err).Warn("dispatcher: dropping unparseable line")
			if e.metrics != nil {
				e.metrics.IncParseErrors()
			}
			continue
		}

		e.analytics.ProcessLog(result.parsed)
		if e.metrics != nil {
			e.metrics.IncRecordsProcessed()
		}

		select {
		case out <- result.parsed:
			if e.metrics != nil {
				e.metrics.SetOutputQueueDepth(len(out))
			}
		case <-ctx.Done():
			return false
		}
	}

	return true
}

type parseResult struct {
	parsed parser.ParsedLog
	err    error
}
