// File: internal/reputation/virustotal.go
package reputation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// riskRatioThreshold is the fraction of (malicious+suspicious) detections
// over total verdicts above which the URL counts as flagged.
const riskRatioThreshold = 0.1

// VirusTotal queries the VirusTotal v3 URL report endpoint.
type VirusTotal struct {
	cfg    config.ProviderConfig
	client *network.Client
	logger *zap.Logger
}

// vtReport mirrors the slice of the v3 response we consume.
type vtReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats map[string]int `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// NewVirusTotal builds the adapter. A missing API key is a configuration
// error, distinct from the per-call failures that fold into Available=false.
func NewVirusTotal(cfg config.ProviderConfig, client *network.Client, logger *zap.Logger) (*VirusTotal, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("virustotal API key is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirusTotal{cfg: cfg, client: client, logger: logger.Named("virustotal")}, nil
}

// Provider implements Source.
func (v *VirusTotal) Provider() schemas.ReputationProvider { return schemas.ProviderVirusTotal }

// Lookup implements Source. The v3 API addresses URL reports by the
// unpadded urlsafe base64 of the URL itself.
func (v *VirusTotal) Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal {
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	urlID := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(rawURL)), "=")
	endpoint := fmt.Sprintf("%s/urls/%s", strings.TrimRight(v.cfg.BaseURL, "/"), urlID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return v.unavailable(rawURL, err)
	}
	req.Header.Set("x-apikey", v.cfg.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return v.unavailable(rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to parsing below
	case http.StatusNotFound:
		// Unknown URL. Submit it for analysis so a future scan has data,
		// but this scan proceeds without the signal.
		v.submit(ctx, rawURL)
		return v.unavailable(rawURL, fmt.Errorf("url not yet analyzed"))
	default:
		return v.unavailable(rawURL, fmt.Errorf("api returned %s", resp.Status))
	}

	var report vtReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return v.unavailable(rawURL, err)
	}

	stats := report.Data.Attributes.LastAnalysisStats
	malicious := stats["malicious"]
	suspicious := stats["suspicious"]
	harmless := stats["harmless"]
	undetected := stats["undetected"]
	total := malicious + suspicious + harmless + undetected

	if total == 0 {
		// A report with no verdicts carries no signal.
		return v.unavailable(rawURL, fmt.Errorf("report has no analysis verdicts"))
	}

	riskRatio := float64(malicious+suspicious) / float64(total)
	signal := schemas.ReputationSignal{
		Source:     schemas.ProviderVirusTotal,
		Available:  true,
		Malicious:  riskRatio > riskRatioThreshold,
		Score:      clamp01(float64(harmless) / float64(total)),
		Detections: stats,
	}
	if signal.Malicious {
		// A flagged URL must not contribute a clean-confidence score.
		signal.Score = clamp01(1 - riskRatio)
	}

	observe(schemas.ProviderVirusTotal, true)
	v.logger.Debug("VirusTotal verdict",
		zap.String("url", rawURL),
		zap.Bool("malicious", signal.Malicious),
		zap.Float64("score", signal.Score),
		zap.Int("total_engines", total))
	return signal
}

// submit posts an unknown URL for analysis. Best effort; errors are only
// logged.
func (v *VirusTotal) submit(ctx context.Context, rawURL string) {
	endpoint := strings.TrimRight(v.cfg.BaseURL, "/") + "/urls"
	body := strings.NewReader(url.Values{"url": {rawURL}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return
	}
	req.Header.Set("x-apikey", v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("VirusTotal submission failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	resp.Body.Close()
	v.logger.Debug("Submitted URL to VirusTotal for analysis", zap.String("url", rawURL))
}

func (v *VirusTotal) unavailable(rawURL string, err error) schemas.ReputationSignal {
	observe(schemas.ProviderVirusTotal, false)
	v.logger.Debug("VirusTotal lookup unavailable", zap.String("url", rawURL), zap.Error(err))
	return Unavailable(schemas.ProviderVirusTotal)
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
