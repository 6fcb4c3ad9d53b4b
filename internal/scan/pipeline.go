// File: internal/scan/pipeline.go
// Description: The single-URL scan pipeline. Feature extraction runs first;
// on success the classifier and both reputation feeds are consulted
// concurrently, and fusion starts once all three have settled. A fetch
// failure short-circuits straight to fusion's Unknown path.

package scan

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/classifier"
	"github.com/urlverdict/verdict-cli/internal/features"
	"github.com/urlverdict/verdict-cli/internal/fusion"
	"github.com/urlverdict/verdict-cli/internal/metrics"
	"github.com/urlverdict/verdict-cli/internal/reputation"
)

// Scanner scans one URL into its result. Implementations never return an
// error: every failure mode is folded into a well-formed ScanResult.
type Scanner interface {
	Scan(ctx context.Context, rawURL string) schemas.ScanResult
}

// Pipeline wires the collaborators for a single-URL scan. All its
// dependencies are stateless and shared safely across concurrent scans.
type Pipeline struct {
	extractor features.Extractor
	predictor classifier.Predictor
	vt        reputation.Source
	gsb       reputation.Source
	fuser     *fusion.Engine
	logger    *zap.Logger
}

// NewPipeline assembles a pipeline. The reputation sources may be nil when a
// provider is disabled; the corresponding signal is then permanently
// unavailable and fusion redistributes its weight.
func NewPipeline(
	extractor features.Extractor,
	predictor classifier.Predictor,
	vt reputation.Source,
	gsb reputation.Source,
	fuser *fusion.Engine,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		predictor: predictor,
		vt:        vt,
		gsb:       gsb,
		fuser:     fuser,
		logger:    logger.Named("pipeline"),
	}
}

// Scan implements Scanner.
func (p *Pipeline) Scan(ctx context.Context, rawURL string) schemas.ScanResult {
	feats, err := p.extractor.Extract(ctx, rawURL)
	if err != nil {
		// The page is unreachable, but lexical features are still available
		// for display when the URL at least parses.
		if u, perr := url.Parse(rawURL); perr == nil && u.Host != "" {
			feats = features.LexicalFeatures(u)
		}
		metrics.ScansTotal.WithLabelValues("fetch_failed").Inc()
		return p.fuser.Fuse(fusion.Inputs{URL: rawURL, Features: feats, FetchErr: err})
	}

	// Features are in hand; score and query reputation concurrently. Each
	// collaborator enforces its own timeout, so none of these block
	// indefinitely.
	var (
		wg     sync.WaitGroup
		ml     schemas.MLSignal
		mlErr  error
		vtSig  schemas.ReputationSignal
		gsbSig schemas.ReputationSignal
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		ml, mlErr = p.predictor.Predict(ctx, rawURL, feats)
	}()
	go func() {
		defer wg.Done()
		vtSig = p.lookup(ctx, p.vt, schemas.ProviderVirusTotal, rawURL)
	}()
	go func() {
		defer wg.Done()
		gsbSig = p.lookup(ctx, p.gsb, schemas.ProviderSafeBrowsing, rawURL)
	}()
	wg.Wait()

	if mlErr != nil {
		metrics.ScansTotal.WithLabelValues("classifier_failed").Inc()
	} else {
		metrics.ScansTotal.WithLabelValues("ok").Inc()
	}

	return p.fuser.Fuse(fusion.Inputs{
		URL:      rawURL,
		Features: feats,
		ML:       ml,
		MLErr:    mlErr,
		VT:       vtSig,
		GSB:      gsbSig,
	})
}

// lookup consults a source, treating a disabled (nil) provider as
// permanently unavailable.
func (p *Pipeline) lookup(ctx context.Context, src reputation.Source, provider schemas.ReputationProvider, rawURL string) schemas.ReputationSignal {
	if src == nil {
		return reputation.Unavailable(provider)
	}
	return src.Lookup(ctx, rawURL)
}
