// File: internal/fusion/fusion.go
// Description: Combines the ML ensemble's verdict with the reputation feeds
// into one deterministic disposition and confidence score. Fusion is a pure
// function of its inputs: identical signals always produce identical results.

package fusion

import (
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
)

// Inputs carries everything the fusion stage needs for one URL. Exactly one
// of FetchErr / (ML, MLErr) pairs is meaningful: when FetchErr is set no
// signal was ever computed.
type Inputs struct {
	URL      string
	Features schemas.URLFeatures

	// FetchErr is the *features.FetchError from the extraction step, nil on
	// success.
	FetchErr error

	ML    schemas.MLSignal
	MLErr error

	VT  schemas.ReputationSignal
	GSB schemas.ReputationSignal
}

// weightedSignal is one (weight, available, score) term of the confidence
// blend. Modeling the blend as a list keeps the arithmetic generic over any
// number of optional sources.
type weightedSignal struct {
	weight    float64
	available bool
	score     float64
}

// Engine fuses per-URL signals. Stateless apart from the configured weights;
// safe for concurrent use.
type Engine struct {
	mlWeight  float64
	vtWeight  float64
	gsbWeight float64
	logger    *zap.Logger
}

// New builds a fusion engine with the configured signal weights.
func New(cfg config.FusionConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mlWeight:  cfg.MLWeight,
		vtWeight:  cfg.VTWeight,
		gsbWeight: cfg.GSBWeight,
		logger:    logger.Named("fusion"),
	}
}

// Fuse produces the ScanResult for one URL from its settled signals.
func (e *Engine) Fuse(in Inputs) schemas.ScanResult {
	// Step 1: content-fetch failure short-circuits everything; no signal was
	// ever computed for this URL.
	if in.FetchErr != nil {
		return e.fetchFailedResult(in)
	}

	// Step 2: classifier failure. Reputation-only fusion when at least one
	// feed answered, otherwise the same Unknown shape as a fetch failure.
	if in.MLErr != nil {
		return e.classifierFailedResult(in)
	}

	// Step 3: base classification from the ensemble.
	class := in.ML.Label
	mlConfidence := in.ML.Confidence()

	// Step 4: weighted confidence with proportional redistribution across
	// the available sources.
	confidence := blend([]weightedSignal{
		{weight: e.mlWeight, available: true, score: mlConfidence},
		{weight: e.vtWeight, available: in.VT.Available, score: in.VT.Score},
		{weight: e.gsbWeight, available: in.GSB.Available, score: in.GSB.Score},
	})

	// Step 5: reputation override, escalation only.
	finalClass, threat, overridden := ApplyOverride(class, in.VT, in.GSB)
	if !overridden {
		threat = threatFromConfidence(finalClass, confidence)
	}

	e.logger.Debug("Signals fused",
		zap.String("url", in.URL),
		zap.String("class", string(finalClass)),
		zap.String("threat_level", string(threat)),
		zap.Float64("final_confidence", confidence),
		zap.Bool("overridden", overridden))

	return schemas.ScanResult{
		URL:             in.URL,
		ClassName:       &finalClass,
		Probabilities:   in.ML.Probabilities,
		ThreatLevel:     threat,
		FinalConfidence: clamp01(confidence),
		URLFeatures:     in.Features,
	}
}

// blend reduces the weighted signals to a single confidence. Weights of
// unavailable sources are redistributed proportionally over the remaining
// ones, so the weights in play always sum to 1. With no available source the
// blend is 0.
func blend(signals []weightedSignal) float64 {
	var totalWeight, sum float64
	for _, s := range signals {
		if s.available {
			totalWeight += s.weight
		}
	}
	if totalWeight == 0 {
		return 0
	}
	for _, s := range signals {
		if s.available {
			sum += (s.weight / totalWeight) * s.score
		}
	}
	return sum
}

// ApplyOverride escalates a Legitimate ML classification when the reputation
// feeds disagree. It NEVER de-escalates: a non-Legitimate class passes
// through untouched regardless of what the feeds say. The returned bool
// reports whether an override fired, in which case the threat level is
// dictated by the override rather than the confidence thresholds.
func ApplyOverride(class schemas.ClassLabel, vt, gsb schemas.ReputationSignal) (schemas.ClassLabel, schemas.ThreatLevel, bool) {
	if class != schemas.ClassLegitimate {
		return class, "", false
	}

	vtFlag := vt.Available && vt.Malicious
	gsbFlag := gsb.Available && gsb.Malicious

	switch {
	case vtFlag && gsbFlag:
		// Two independent feeds agreeing is a high-precision veto.
		return schemas.ClassMalicious, schemas.ThreatHigh, true
	case vtFlag || gsbFlag:
		return schemas.ClassSuspicious, schemas.ThreatMedium, true
	default:
		return class, "", false
	}
}

// threatFromConfidence derives the risk bucket when no override fired.
func threatFromConfidence(class schemas.ClassLabel, confidence float64) schemas.ThreatLevel {
	switch class {
	case schemas.ClassCredentialPhishing, schemas.ClassMalwareDistribution:
		return schemas.ThreatHigh
	case schemas.ClassLegitimate:
		if confidence >= 0.8 {
			return schemas.ThreatLow
		}
		return schemas.ThreatMedium
	default:
		return schemas.ThreatMedium
	}
}

// fetchFailedResult is the step-1 Unknown shape: the page was unreachable so
// no disposition can be assigned. Lexical features, when present, ride along
// for display.
func (e *Engine) fetchFailedResult(in Inputs) schemas.ScanResult {
	details := DetailsForFetchError(in.FetchErr)
	msg := in.FetchErr.Error()
	return schemas.ScanResult{
		URL:             in.URL,
		ClassName:       nil,
		ThreatLevel:     schemas.ThreatUnknown,
		FinalConfidence: 0.0,
		Error:           &msg,
		ErrorDetails:    &details,
		URLFeatures:     in.Features,
	}
}

// classifierFailedResult surfaces the ClassifierError but still fuses the
// reputation signals when at least one feed answered.
func (e *Engine) classifierFailedResult(in Inputs) schemas.ScanResult {
	msg := in.MLErr.Error()

	if !in.VT.Available && !in.GSB.Available {
		details := classifierUnavailableDetails
		return schemas.ScanResult{
			URL:             in.URL,
			ClassName:       nil,
			ThreatLevel:     schemas.ThreatUnknown,
			FinalConfidence: 0.0,
			Error:           &msg,
			ErrorDetails:    &details,
			URLFeatures:     in.Features,
		}
	}

	confidence := blend([]weightedSignal{
		{weight: e.vtWeight, available: in.VT.Available, score: in.VT.Score},
		{weight: e.gsbWeight, available: in.GSB.Available, score: in.GSB.Score},
	})

	threat := schemas.ThreatUnknown
	vtFlag := in.VT.Available && in.VT.Malicious
	gsbFlag := in.GSB.Available && in.GSB.Malicious
	switch {
	case vtFlag && gsbFlag:
		threat = schemas.ThreatHigh
	case vtFlag || gsbFlag:
		threat = schemas.ThreatMedium
	}

	e.logger.Debug("Reputation-only fusion after classifier failure",
		zap.String("url", in.URL),
		zap.String("threat_level", string(threat)),
		zap.Float64("final_confidence", confidence))

	return schemas.ScanResult{
		URL:             in.URL,
		ClassName:       nil,
		ThreatLevel:     threat,
		FinalConfidence: clamp01(confidence),
		Error:           &msg,
		URLFeatures:     in.Features,
	}
}

// SynthesizeTimeout builds the Unknown result for a pipeline that was still
// pending when the batch deadline expired. Shaped like a content-fetch
// failure so batches stay fully enumerable.
func SynthesizeTimeout(rawURL string) schemas.ScanResult {
	details := batchTimeoutDetails
	msg := "scan cancelled: batch deadline exceeded"
	return schemas.ScanResult{
		URL:             rawURL,
		ClassName:       nil,
		ThreatLevel:     schemas.ThreatUnknown,
		FinalConfidence: 0.0,
		Error:           &msg,
		ErrorDetails:    &details,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
