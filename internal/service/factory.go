// File: internal/service/factory.go
// Description: Dependency injection for the scan engine. Translates the
// application configuration into wired collaborators: HTTP clients, feature
// extractor, classifier adapter, reputation sources (rate limited and
// optionally cached), fusion engine, pipeline and orchestrator.

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/internal/classifier"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/features"
	"github.com/urlverdict/verdict-cli/internal/fusion"
	"github.com/urlverdict/verdict-cli/internal/network"
	"github.com/urlverdict/verdict-cli/internal/reputation"
	"github.com/urlverdict/verdict-cli/internal/scan"
)

// Create performs the full dependency injection for a scan session. Missing
// API keys for enabled providers are configuration errors and fail here,
// before any scan starts.
func Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Two clients off one transport configuration: content fetching follows
	// redirects with a tighter timeout, API traffic does not.
	apiClient := network.NewClient(network.NewClientConfigFrom(cfg.Network, logger))

	fetchCfg := network.NewClientConfigFrom(cfg.Network, logger)
	fetchCfg.FollowRedirects = true
	if cfg.Network.FetchTimeout > 0 {
		fetchCfg.RequestTimeout = cfg.Network.FetchTimeout
	}
	fetchClient := network.NewClient(fetchCfg)

	extractor := features.NewContentExtractor(fetchClient, logger)

	predictor, err := classifier.NewRemotePredictor(cfg.Classifier, apiClient, logger)
	if err != nil {
		return nil, fmt.Errorf("building classifier adapter: %w", err)
	}

	components := &Components{logger: logger}

	if cfg.Reputation.Cache.Enabled {
		rdb, err := reputation.NewCache(ctx, cfg.Reputation.Cache)
		if err != nil {
			return nil, fmt.Errorf("connecting verdict cache: %w", err)
		}
		components.redisClient = rdb
	}

	vt, err := buildSource(cfg.Reputation.VirusTotal, cfg.Reputation.Cache, components, logger, func() (reputation.Source, error) {
		return reputation.NewVirusTotal(cfg.Reputation.VirusTotal, apiClient, logger)
	})
	if err != nil {
		components.Shutdown()
		return nil, fmt.Errorf("building virustotal adapter: %w", err)
	}

	gsb, err := buildSource(cfg.Reputation.SafeBrowsing, cfg.Reputation.Cache, components, logger, func() (reputation.Source, error) {
		return reputation.NewSafeBrowsing(cfg.Reputation.SafeBrowsing, apiClient, logger)
	})
	if err != nil {
		components.Shutdown()
		return nil, fmt.Errorf("building safe browsing adapter: %w", err)
	}

	fuser := fusion.New(cfg.Fusion, logger)

	components.Pipeline = scan.NewPipeline(extractor, predictor, vt, gsb, fuser, logger)
	components.Orchestrator = scan.NewOrchestrator(cfg.Engine, components.Pipeline, logger)

	logger.Info("Scan components initialized",
		zap.Bool("virustotal", vt != nil),
		zap.Bool("safebrowsing", gsb != nil),
		zap.Bool("verdict_cache", components.redisClient != nil),
		zap.Int("concurrency", cfg.Engine.Concurrency))

	return components, nil
}

// buildSource constructs one reputation source with its rate limiter and,
// when configured, the shared verdict cache. A disabled provider yields nil,
// which the pipeline treats as permanently unavailable.
func buildSource(
	providerCfg config.ProviderConfig,
	cacheCfg config.CacheConfig,
	components *Components,
	logger *zap.Logger,
	construct func() (reputation.Source, error),
) (reputation.Source, error) {
	if !providerCfg.Enabled {
		return nil, nil
	}

	src, err := construct()
	if err != nil {
		return nil, err
	}

	src = reputation.WithRateLimit(src, providerCfg.RateLimit, logger)
	if components.redisClient != nil {
		src = reputation.WithCache(src, components.redisClient, cacheCfg.TTL, logger)
	}
	return src, nil
}
