// File: internal/reputation/reputation.go
// Description: Normalized adapters for third-party threat-intelligence feeds.
// A lookup NEVER fails for transient reasons: network errors, timeouts and
// rate limits all fold into Available=false so fusion treats the source as
// absent rather than clean. Only configuration problems (a missing API key)
// are surfaced, and those fail at construction time.

package reputation

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/metrics"
)

// Source is a single reputation provider the fusion engine can consult.
// Implementations are stateless and safe for concurrent use.
type Source interface {
	Provider() schemas.ReputationProvider
	Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal
}

// Unavailable builds the no-signal result for a provider. Malicious and
// Score are zeroed; fusion must ignore them when Available is false.
func Unavailable(provider schemas.ReputationProvider) schemas.ReputationSignal {
	return schemas.ReputationSignal{Source: provider, Available: false}
}

// limitedSource applies a rate limiter in front of a provider so we stay a
// good citizen toward external APIs. A lookup that cannot obtain a token
// before its deadline degrades to Available=false instead of queueing
// forever.
type limitedSource struct {
	inner   Source
	limiter *rate.Limiter
	logger  *zap.Logger
}

// WithRateLimit wraps src with a token-bucket limiter of the given
// requests-per-second. A non-positive limit returns src unchanged.
func WithRateLimit(src Source, perSecond float64, logger *zap.Logger) Source {
	if perSecond <= 0 {
		return src
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &limitedSource{
		inner:   src,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.Named("ratelimit"),
	}
}

func (l *limitedSource) Provider() schemas.ReputationProvider { return l.inner.Provider() }

func (l *limitedSource) Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal {
	if err := l.limiter.Wait(ctx); err != nil {
		l.logger.Debug("Rate limiter wait aborted, treating source as unavailable",
			zap.String("provider", string(l.inner.Provider())),
			zap.Error(err))
		return Unavailable(l.inner.Provider())
	}
	return l.inner.Lookup(ctx, rawURL)
}

// observe records the lookup outcome metric shared by all providers.
func observe(provider schemas.ReputationProvider, available bool) {
	metrics.ReputationLookups.WithLabelValues(string(provider), strconv.FormatBool(available)).Inc()
}
