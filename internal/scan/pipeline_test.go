// internal/scan/pipeline_test.go
package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/features"
	"github.com/urlverdict/verdict-cli/internal/fusion"
	"github.com/urlverdict/verdict-cli/internal/reputation"
)

// stubExtractor returns a fixed feature map or error.
type stubExtractor struct {
	feats schemas.URLFeatures
	err   error
}

func (s *stubExtractor) Extract(ctx context.Context, rawURL string) (schemas.URLFeatures, error) {
	return s.feats, s.err
}

// selectiveExtractor fails exactly one URL and succeeds for the rest.
type selectiveExtractor struct {
	failURL string
	feats   schemas.URLFeatures
}

func (s *selectiveExtractor) Extract(ctx context.Context, rawURL string) (schemas.URLFeatures, error) {
	if rawURL == s.failURL {
		return nil, &features.FetchError{Kind: features.FetchDNS, URL: rawURL, Err: errors.New("no such host")}
	}
	return s.feats, nil
}

// stubPredictor returns a fixed signal or error.
type stubPredictor struct {
	signal schemas.MLSignal
	err    error
}

func (s *stubPredictor) Predict(ctx context.Context, rawURL string, feats schemas.URLFeatures) (schemas.MLSignal, error) {
	return s.signal, s.err
}

// stubSource returns a fixed reputation signal.
type stubSource struct {
	provider schemas.ReputationProvider
	signal   schemas.ReputationSignal
}

func (s *stubSource) Provider() schemas.ReputationProvider { return s.provider }
func (s *stubSource) Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal {
	return s.signal
}

func newTestPipeline(x features.Extractor, p *stubPredictor, vt, gsb reputation.Source) *Pipeline {
	fuser := fusion.New(config.FusionConfig{MLWeight: 0.5, VTWeight: 0.3, GSBWeight: 0.2}, zap.NewNop())
	return NewPipeline(x, p, vt, gsb, fuser, zap.NewNop())
}

func cleanSignal(provider schemas.ReputationProvider) schemas.ReputationSignal {
	return schemas.ReputationSignal{Source: provider, Available: true, Score: 1}
}

// TestPipeline_HappyPath verifies a full scan with every collaborator
// answering.
func TestPipeline_HappyPath(t *testing.T) {
	p := newTestPipeline(
		&stubExtractor{feats: schemas.URLFeatures{"url_length": 23}},
		&stubPredictor{signal: schemas.MLSignal{
			Label: schemas.ClassLegitimate,
			Probabilities: map[schemas.ClassLabel]float64{
				schemas.ClassLegitimate:          0.9,
				schemas.ClassCredentialPhishing:  0.06,
				schemas.ClassMalwareDistribution: 0.04,
			},
		}},
		&stubSource{provider: schemas.ProviderVirusTotal, signal: cleanSignal(schemas.ProviderVirusTotal)},
		&stubSource{provider: schemas.ProviderSafeBrowsing, signal: cleanSignal(schemas.ProviderSafeBrowsing)},
	)

	result := p.Scan(context.Background(), "https://example.com")

	require.NotNil(t, result.ClassName)
	assert.Equal(t, schemas.ClassLegitimate, *result.ClassName)
	assert.Equal(t, schemas.ThreatLow, result.ThreatLevel)
	assert.Equal(t, schemas.URLFeatures{"url_length": 23}, result.URLFeatures)
	assert.Nil(t, result.Error)
}

// TestPipeline_FetchFailureKeepsLexicalFeatures verifies that an unreachable
// page still yields an Unknown result carrying URL-derived features.
func TestPipeline_FetchFailureKeepsLexicalFeatures(t *testing.T) {
	fetchErr := &features.FetchError{Kind: features.FetchDNS, URL: "https://gone.example", Err: errors.New("no such host")}
	p := newTestPipeline(
		&stubExtractor{err: fetchErr},
		&stubPredictor{},
		nil, nil,
	)

	result := p.Scan(context.Background(), "https://gone.example/path")

	assert.Nil(t, result.ClassName)
	assert.Equal(t, schemas.ThreatUnknown, result.ThreatLevel)
	require.NotNil(t, result.ErrorDetails)
	assert.Equal(t, "Content Fetch Failed", result.ErrorDetails.Reason)
	require.NotEmpty(t, result.URLFeatures, "lexical features are computed from the URL alone")
	assert.EqualValues(t, len("https://gone.example/path"), result.URLFeatures["url_length"])
}

// TestPipeline_NilSourcesAreUnavailable verifies disabled providers fold
// into missing signals rather than panics.
func TestPipeline_NilSourcesAreUnavailable(t *testing.T) {
	p := newTestPipeline(
		&stubExtractor{feats: schemas.URLFeatures{}},
		&stubPredictor{signal: schemas.MLSignal{
			Label: schemas.ClassLegitimate,
			Probabilities: map[schemas.ClassLabel]float64{
				schemas.ClassLegitimate:          0.7,
				schemas.ClassCredentialPhishing:  0.2,
				schemas.ClassMalwareDistribution: 0.1,
			},
		}},
		nil, nil,
	)

	result := p.Scan(context.Background(), "https://example.com")

	require.NotNil(t, result.ClassName)
	assert.Equal(t, schemas.ClassLegitimate, *result.ClassName)
	// Only the ML signal is in play, so its confidence passes through.
	assert.InDelta(t, 0.7, result.FinalConfidence, 1e-9)
}

// TestScanBatch_FetchFailureIsolatedInPosition runs a real pipeline through
// the orchestrator: one URL of three is unreachable, and its Unknown result
// sits at its request index while the siblings scan normally.
func TestScanBatch_FetchFailureIsolatedInPosition(t *testing.T) {
	urls := []string{
		"https://ok-1.example",
		"https://gone.example",
		"https://ok-2.example",
	}

	pipeline := newTestPipeline(
		&selectiveExtractor{failURL: urls[1], feats: schemas.URLFeatures{"url_length": 20}},
		&stubPredictor{signal: schemas.MLSignal{
			Label: schemas.ClassLegitimate,
			Probabilities: map[schemas.ClassLabel]float64{
				schemas.ClassLegitimate:          0.9,
				schemas.ClassCredentialPhishing:  0.06,
				schemas.ClassMalwareDistribution: 0.04,
			},
		}},
		nil, nil,
	)
	o := NewOrchestrator(config.EngineConfig{Concurrency: 2}, pipeline, zap.NewNop())

	result, err := o.ScanBatch(context.Background(), urls, 10)
	require.NoError(t, err, "a mid-scan fetch failure never fails the batch")
	require.Len(t, result.Results, 3)

	// The failed URL holds its slot with the full Unknown shape.
	failed := result.Results[1]
	assert.Equal(t, urls[1], failed.URL)
	assert.Nil(t, failed.ClassName)
	assert.Equal(t, schemas.ThreatUnknown, failed.ThreatLevel)
	assert.Zero(t, failed.FinalConfidence)
	require.NotNil(t, failed.Error)
	require.NotNil(t, failed.ErrorDetails)
	assert.Equal(t, "Content Fetch Failed", failed.ErrorDetails.Reason)
	require.NotEmpty(t, failed.URLFeatures, "lexical features survive the fetch failure")

	// Siblings are untouched by the failure.
	for _, i := range []int{0, 2} {
		sibling := result.Results[i]
		assert.Equal(t, urls[i], sibling.URL)
		require.NotNil(t, sibling.ClassName, "sibling %d must scan normally", i)
		assert.Equal(t, schemas.ClassLegitimate, *sibling.ClassName)
		assert.Equal(t, schemas.ThreatLow, sibling.ThreatLevel)
		assert.Nil(t, sibling.Error)
	}
}

// TestPipeline_ClassifierFailureSurfacesError verifies the per-URL error
// stays visible while reputation still contributes.
func TestPipeline_ClassifierFailureSurfacesError(t *testing.T) {
	p := newTestPipeline(
		&stubExtractor{feats: schemas.URLFeatures{}},
		&stubPredictor{err: errors.New("inference service down")},
		&stubSource{provider: schemas.ProviderVirusTotal, signal: schemas.ReputationSignal{
			Source: schemas.ProviderVirusTotal, Available: true, Malicious: true, Score: 0.1,
		}},
		nil,
	)

	result := p.Scan(context.Background(), "https://example.com")

	assert.Nil(t, result.ClassName)
	assert.Equal(t, schemas.ThreatMedium, result.ThreatLevel)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "inference service down")
}
