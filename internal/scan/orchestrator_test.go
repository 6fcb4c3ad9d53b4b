// internal/scan/orchestrator_test.go
package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeScanner returns canned results and records every call. Scan delays by
// the configured latency so concurrency behavior is observable.
type fakeScanner struct {
	latency time.Duration
	calls   atomic.Int64

	mu       sync.Mutex
	inflight int
	peak     int
}

func (f *fakeScanner) Scan(ctx context.Context, rawURL string) schemas.ScanResult {
	f.calls.Add(1)

	f.mu.Lock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
		}
	}

	label := schemas.ClassLegitimate
	if strings.Contains(rawURL, "phish") {
		label = schemas.ClassCredentialPhishing
	}
	return schemas.ScanResult{URL: rawURL, ClassName: &label, ThreatLevel: schemas.ThreatLow}
}

func newTestOrchestrator(scanner Scanner, concurrency int, timeout time.Duration) *Orchestrator {
	return NewOrchestrator(config.EngineConfig{
		Concurrency:  concurrency,
		BatchTimeout: timeout,
	}, scanner, zap.NewNop())
}

// -- Test Cases: Validation --

// TestValidateURL covers the request-shape rules.
func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain https", "https://example.com", false},
		{"plain http", "http://example.com/path?q=1", false},
		{"missing scheme", "example.com", true},
		{"unsupported scheme", "ftp://example.com", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"scheme only", "https://", true},
		{"empty", "", true},
		{"spaces", "https://exa mple.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestScanBatch_RejectsWholeBatchBeforeDispatch verifies fail-fast semantics:
// one bad URL rejects everything and no scan ever starts.
func TestScanBatch_RejectsWholeBatchBeforeDispatch(t *testing.T) {
	scanner := &fakeScanner{}
	o := newTestOrchestrator(scanner, 4, 0)

	urls := []string{"https://ok-1.example", "ftp://bad.example", "https://ok-2.example"}
	result, err := o.ScanBatch(context.Background(), urls, 10)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "#2", "the rejection should identify the offending entry")
	assert.Empty(t, result.Results, "no partial results on validation failure")
	assert.Zero(t, scanner.calls.Load(), "no external work may start for a rejected batch")
}

// TestScanBatch_RejectsEmptyBatch verifies the empty-request rejection.
func TestScanBatch_RejectsEmptyBatch(t *testing.T) {
	o := newTestOrchestrator(&fakeScanner{}, 4, 0)

	_, err := o.ScanBatch(context.Background(), nil, 10)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

// TestScanBatch_EnforcesCardinalityCap verifies the per-entry-point cap.
func TestScanBatch_EnforcesCardinalityCap(t *testing.T) {
	scanner := &fakeScanner{}
	o := newTestOrchestrator(scanner, 4, 0)

	urls := make([]string, 11)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://target-%d.example", i)
	}

	_, err := o.ScanBatch(context.Background(), urls, 10)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, scanner.calls.Load())

	// The same batch passes under the larger bulk cap.
	result, err := o.ScanBatch(context.Background(), urls, 1000)
	require.NoError(t, err)
	assert.Len(t, result.Results, 11)
}

// -- Test Cases: Dispatch --

// TestScanBatch_PreservesInputOrder verifies results land at their request
// index regardless of completion order.
func TestScanBatch_PreservesInputOrder(t *testing.T) {
	o := newTestOrchestrator(&fakeScanner{latency: 5 * time.Millisecond}, 8, 0)

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://target-%02d.example", i)
	}

	result, err := o.ScanBatch(context.Background(), urls, 1000)
	require.NoError(t, err)
	require.Len(t, result.Results, len(urls))

	for i, r := range result.Results {
		assert.Equal(t, urls[i], r.URL, "result %d out of order", i)
	}
	assert.Greater(t, result.ProcessingTime, 0.0)
}

// TestScanBatch_RespectsConcurrencyCeiling verifies the semaphore actually
// bounds in-flight pipelines.
func TestScanBatch_RespectsConcurrencyCeiling(t *testing.T) {
	scanner := &fakeScanner{latency: 20 * time.Millisecond}
	o := newTestOrchestrator(scanner, 3, 0)

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://target-%d.example", i)
	}

	_, err := o.ScanBatch(context.Background(), urls, 1000)
	require.NoError(t, err)

	scanner.mu.Lock()
	peak := scanner.peak
	scanner.mu.Unlock()
	assert.LessOrEqual(t, peak, 3, "in-flight scans must never exceed the ceiling")
	assert.EqualValues(t, 12, scanner.calls.Load())
}

// TestScanBatch_SingleURL verifies the degenerate one-element batch.
func TestScanBatch_SingleURL(t *testing.T) {
	o := newTestOrchestrator(&fakeScanner{}, 4, 0)

	result, err := o.ScanBatch(context.Background(), []string{"https://example.com"}, 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "https://example.com", result.Results[0].URL)
}

// TestScanBatch_TimeoutSynthesizesUnknowns verifies that pipelines still
// queued at the deadline produce Unknown results instead of holes.
func TestScanBatch_TimeoutSynthesizesUnknowns(t *testing.T) {
	// One slot, slow scans, tight deadline: most entries never run.
	scanner := &fakeScanner{latency: 50 * time.Millisecond}
	o := newTestOrchestrator(scanner, 1, 75*time.Millisecond)

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://slow-%d.example", i)
	}

	result, err := o.ScanBatch(context.Background(), urls, 1000)
	require.NoError(t, err, "a timed-out batch still returns normally")
	require.Len(t, result.Results, len(urls), "every requested URL gets a slot")

	var timedOut int
	for i, r := range result.Results {
		assert.Equal(t, urls[i], r.URL)
		if r.ThreatLevel == schemas.ThreatUnknown {
			timedOut++
			require.NotNil(t, r.ErrorDetails)
			assert.Equal(t, "Scan Timed Out", r.ErrorDetails.Reason)
		}
	}
	assert.Greater(t, timedOut, 0, "the tight deadline should have cancelled some scans")
	assert.Less(t, timedOut, len(urls), "the first scan had time to finish")
}

// TestScanOne verifies single-URL validation and dispatch.
func TestScanOne(t *testing.T) {
	scanner := &fakeScanner{}
	o := newTestOrchestrator(scanner, 4, 0)

	result, err := o.ScanOne(context.Background(), "https://phish.example/login")
	require.NoError(t, err)
	require.NotNil(t, result.ClassName)
	assert.Equal(t, schemas.ClassCredentialPhishing, *result.ClassName)

	_, err = o.ScanOne(context.Background(), "not a url")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.EqualValues(t, 1, scanner.calls.Load())
}
