// File: internal/reputation/safebrowsing.go
package reputation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/network"
)

// SafeBrowsing queries the Google Safe Browsing v4 threatMatches endpoint.
// The feed is binary: a URL either appears on a threat list or it does not,
// so Score is 0 for a match and 1 for a clean lookup.
type SafeBrowsing struct {
	cfg    config.ProviderConfig
	client *network.Client
	logger *zap.Logger
}

type sbRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string `json:"threatTypes"`
		PlatformTypes    []string `json:"platformTypes"`
		ThreatEntryTypes []string `json:"threatEntryTypes"`
		ThreatEntries    []struct {
			URL string `json:"url"`
		} `json:"threatEntries"`
	} `json:"threatInfo"`
}

type sbResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

// NewSafeBrowsing builds the adapter; a missing API key fails construction.
func NewSafeBrowsing(cfg config.ProviderConfig, client *network.Client, logger *zap.Logger) (*SafeBrowsing, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("safe browsing API key is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeBrowsing{cfg: cfg, client: client, logger: logger.Named("safebrowsing")}, nil
}

// Provider implements Source.
func (s *SafeBrowsing) Provider() schemas.ReputationProvider { return schemas.ProviderSafeBrowsing }

// Lookup implements Source.
func (s *SafeBrowsing) Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var reqBody sbRequest
	reqBody.Client.ClientID = "verdict-cli"
	reqBody.Client.ClientVersion = "0.1"
	reqBody.ThreatInfo.ThreatTypes = []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE"}
	reqBody.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	reqBody.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	reqBody.ThreatInfo.ThreatEntries = []struct {
		URL string `json:"url"`
	}{{URL: rawURL}}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return s.unavailable(rawURL, err)
	}

	endpoint := fmt.Sprintf("%s/threatMatches:find?key=%s", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return s.unavailable(rawURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return s.unavailable(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.unavailable(rawURL, fmt.Errorf("api returned %s", resp.Status))
	}

	var out sbResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return s.unavailable(rawURL, err)
	}

	signal := schemas.ReputationSignal{
		Source:    schemas.ProviderSafeBrowsing,
		Available: true,
	}
	if len(out.Matches) > 0 {
		signal.Malicious = true
		signal.Score = 0
		signal.Detections = map[string]int{}
		for _, m := range out.Matches {
			signal.Detections[strings.ToLower(m.ThreatType)]++
		}
	} else {
		signal.Score = 1
	}

	observe(schemas.ProviderSafeBrowsing, true)
	s.logger.Debug("Safe Browsing verdict",
		zap.String("url", rawURL),
		zap.Bool("malicious", signal.Malicious),
		zap.Int("matches", len(out.Matches)))
	return signal
}

func (s *SafeBrowsing) unavailable(rawURL string, err error) schemas.ReputationSignal {
	observe(schemas.ProviderSafeBrowsing, false)
	s.logger.Debug("Safe Browsing lookup unavailable", zap.String("url", rawURL), zap.Error(err))
	return Unavailable(schemas.ProviderSafeBrowsing)
}
