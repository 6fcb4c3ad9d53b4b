// File: internal/classifier/classifier.go
// Description: Adapter around the pretrained ensemble. The ensemble itself is
// a black box served over HTTP by an inference service; this package only
// shapes its output into an MLSignal and surfaces failures as ClassifierError.

package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClassifierError reports that the ensemble could not score a URL. It is
// surfaced in the per-URL result, never aborts sibling scans.
type ClassifierError struct {
	URL string
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier failed for %s: %v", e.URL, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// Predictor scores extracted features into an MLSignal.
type Predictor interface {
	Predict(ctx context.Context, rawURL string, feats schemas.URLFeatures) (schemas.MLSignal, error)
}

// RemotePredictor calls an ensemble inference service over HTTP. Stateless
// and safe for concurrent use.
type RemotePredictor struct {
	endpoint string
	timeout  config.ClassifierConfig
	client   *network.Client
	logger   *zap.Logger
}

// predictRequest is the wire shape sent to the inference service.
type predictRequest struct {
	URL      string              `json:"url"`
	Features schemas.URLFeatures `json:"features"`
}

// predictResponse is the wire shape returned by the inference service.
type predictResponse struct {
	Label         schemas.ClassLabel             `json:"label"`
	Probabilities map[schemas.ClassLabel]float64 `json:"probabilities"`
}

// NewRemotePredictor builds a predictor against the configured endpoint.
func NewRemotePredictor(cfg config.ClassifierConfig, client *network.Client, logger *zap.Logger) (*RemotePredictor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("classifier endpoint is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemotePredictor{
		endpoint: cfg.Endpoint,
		timeout:  cfg,
		client:   client,
		logger:   logger.Named("classifier"),
	}, nil
}

// Predict implements Predictor.
func (p *RemotePredictor) Predict(ctx context.Context, rawURL string, feats schemas.URLFeatures) (schemas.MLSignal, error) {
	if p.timeout.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(predictRequest{URL: rawURL, Features: feats})
	if err != nil {
		return schemas.MLSignal{}, &ClassifierError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return schemas.MLSignal{}, &ClassifierError{URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return schemas.MLSignal{}, &ClassifierError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return schemas.MLSignal{}, &ClassifierError{
			URL: rawURL,
			Err: fmt.Errorf("inference service returned %s: %s", resp.Status, bytes.TrimSpace(body)),
		}
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return schemas.MLSignal{}, &ClassifierError{URL: rawURL, Err: fmt.Errorf("decoding prediction: %w", err)}
	}

	signal := schemas.MLSignal{Label: out.Label, Probabilities: out.Probabilities}
	if err := validateSignal(signal); err != nil {
		return schemas.MLSignal{}, &ClassifierError{URL: rawURL, Err: err}
	}

	p.logger.Debug("Ensemble prediction received",
		zap.String("url", rawURL),
		zap.String("label", string(signal.Label)),
		zap.Float64("confidence", signal.Confidence()))

	return signal, nil
}

// validateSignal rejects malformed ensemble output before it can poison
// fusion.
func validateSignal(s schemas.MLSignal) error {
	switch s.Label {
	case schemas.ClassLegitimate, schemas.ClassCredentialPhishing, schemas.ClassMalwareDistribution:
	default:
		return fmt.Errorf("unknown class label %q", s.Label)
	}
	if len(s.Probabilities) == 0 {
		return fmt.Errorf("empty probability distribution")
	}
	var sum float64
	for label, p := range s.Probabilities {
		if p < 0 || p > 1 {
			return fmt.Errorf("probability for %q out of range: %v", label, p)
		}
		sum += p
	}
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("probabilities sum to %v, want 1.0", sum)
	}
	return nil
}
