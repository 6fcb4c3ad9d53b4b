// File: internal/scan/orchestrator.go
// Description: Fans the single-URL pipeline out over a batch with bounded
// concurrency, per-item failure isolation, and order-preserving aggregation.

package scan

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/fusion"
	"github.com/urlverdict/verdict-cli/internal/metrics"
)

// Orchestrator dispatches batches of scans. The concurrency ceiling is the
// system's only admission control: callers beyond it queue on the semaphore
// rather than being rejected.
type Orchestrator struct {
	scanner      Scanner
	concurrency  int64
	batchTimeout time.Duration
	logger       *zap.Logger
}

// NewOrchestrator builds an orchestrator from the engine configuration.
func NewOrchestrator(cfg config.EngineConfig, scanner Scanner, logger *zap.Logger) *Orchestrator {
	concurrency := int64(cfg.Concurrency)
	if concurrency <= 0 {
		concurrency = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		scanner:      scanner,
		concurrency:  concurrency,
		batchTimeout: cfg.BatchTimeout,
		logger:       logger.Named("orchestrator"),
	}
}

// ScanOne validates and scans a single URL.
func (o *Orchestrator) ScanOne(ctx context.Context, rawURL string) (schemas.ScanResult, error) {
	if err := ValidateURL(rawURL); err != nil {
		return schemas.ScanResult{}, err
	}
	return o.scanner.Scan(ctx, rawURL), nil
}

// ScanBatch validates the whole request up front, then runs every URL's
// pipeline concurrently under the ceiling. Results come back in input order
// regardless of completion order; one URL's failure never cancels or
// corrupts a sibling's scan.
//
// maxURLs is the cardinality cap of the calling entry point (interactive or
// bulk); caps are independent per entry point.
func (o *Orchestrator) ScanBatch(ctx context.Context, urls []string, maxURLs int) (schemas.BatchResult, error) {
	// Fail fast on request shape: no external work has started yet, so a
	// malformed request rejects wholesale with zero partial results.
	if len(urls) == 0 {
		return schemas.BatchResult{}, NewValidationError("batch must contain at least one URL")
	}
	if len(urls) > maxURLs {
		return schemas.BatchResult{}, NewValidationError("batch of %d URLs exceeds the cap of %d", len(urls), maxURLs)
	}
	for i, raw := range urls {
		if err := ValidateURL(raw); err != nil {
			return schemas.BatchResult{}, NewValidationError("url #%d %q: %v", i+1, raw, err)
		}
	}

	batchID := uuid.New().String()
	o.logger.Info("Dispatching batch scan",
		zap.String("batch_id", batchID),
		zap.Int("urls", len(urls)),
		zap.Int64("concurrency", o.concurrency))

	batchCtx := ctx
	if o.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, o.batchTimeout)
		defer cancel()
	}

	start := time.Now()

	// Indexed placement into a preallocated slice keeps input order without
	// sorting and without a shared mutable accumulator.
	results := make([]schemas.ScanResult, len(urls))
	sem := semaphore.NewWeighted(o.concurrency)
	var wg sync.WaitGroup

	for i, raw := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()

			if err := sem.Acquire(batchCtx, 1); err != nil {
				// Deadline expired while queued; the pipeline never ran.
				results[idx] = fusion.SynthesizeTimeout(target)
				return
			}
			defer sem.Release(1)

			if batchCtx.Err() != nil {
				results[idx] = fusion.SynthesizeTimeout(target)
				return
			}

			results[idx] = o.scanner.Scan(batchCtx, target)
		}(i, raw)
	}

	wg.Wait()
	elapsed := time.Since(start)

	metrics.BatchDuration.Observe(elapsed.Seconds())
	metrics.BatchSize.Observe(float64(len(urls)))

	o.logger.Info("Batch scan complete",
		zap.String("batch_id", batchID),
		zap.Int("urls", len(urls)),
		zap.Duration("elapsed", elapsed))

	return schemas.BatchResult{
		Results:        results,
		ProcessingTime: elapsed.Seconds(),
	}, nil
}

// ValidateURL checks that a candidate is an absolute http(s) URL with a
// host. Anything else is a request-shape problem, rejected before dispatch.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("malformed URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("URL scheme must be http or https")
	}
	if u.Host == "" {
		return NewValidationError("URL is missing a host")
	}
	return nil
}
