// internal/reputation/virustotal_test.go
package reputation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/network"
)

func testClient() *network.Client {
	cfg := network.NewDefaultClientConfig()
	cfg.RequestTimeout = 5 * time.Second
	return network.NewClient(cfg)
}

func vtConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}
}

// TestNewVirusTotal_RequiresAPIKey verifies the construction-time check.
func TestNewVirusTotal_RequiresAPIKey(t *testing.T) {
	_, err := NewVirusTotal(config.ProviderConfig{}, testClient(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key", "error should name the missing configuration")
}

// TestVirusTotal_CleanReport verifies score derivation for an overwhelmingly
// clean analysis.
func TestVirusTotal_CleanReport(t *testing.T) {
	const target = "https://example.com/page"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-apikey"))

		wantID := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(target)), "=")
		assert.Equal(t, "/urls/"+wantID, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":0,"suspicious":0,"harmless":70,"undetected":20}}}}`))
	}))
	defer srv.Close()

	vt, err := NewVirusTotal(vtConfig(srv.URL), testClient(), zap.NewNop())
	require.NoError(t, err)

	signal := vt.Lookup(context.Background(), target)

	assert.Equal(t, schemas.ProviderVirusTotal, signal.Source)
	assert.True(t, signal.Available)
	assert.False(t, signal.Malicious)
	assert.InDelta(t, 70.0/90.0, signal.Score, 1e-9)
	assert.Equal(t, 70, signal.Detections["harmless"])
}

// TestVirusTotal_RiskRatio verifies the malicious threshold at the boundary.
func TestVirusTotal_RiskRatio(t *testing.T) {
	tests := []struct {
		name                  string
		malicious, suspicious int
		harmless, undetected  int
		wantMalicious         bool
	}{
		{"ratio above threshold", 10, 5, 70, 15, true},
		{"ratio exactly at threshold stays clean", 10, 0, 80, 10, false},
		{"single detection in a large pool", 1, 0, 90, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				body := fmt.Sprintf(
					`{"data":{"attributes":{"last_analysis_stats":{"malicious":%d,"suspicious":%d,"harmless":%d,"undetected":%d}}}}`,
					tt.malicious, tt.suspicious, tt.harmless, tt.undetected)
				w.Write([]byte(body))
			}))
			defer srv.Close()

			vt, err := NewVirusTotal(vtConfig(srv.URL), testClient(), zap.NewNop())
			require.NoError(t, err)

			signal := vt.Lookup(context.Background(), "https://example.com")
			require.True(t, signal.Available)
			assert.Equal(t, tt.wantMalicious, signal.Malicious)
			if tt.wantMalicious {
				total := float64(tt.malicious + tt.suspicious + tt.harmless + tt.undetected)
				assert.InDelta(t, 1-float64(tt.malicious+tt.suspicious)/total, signal.Score, 1e-9)
			}
		})
	}
}

// TestVirusTotal_UnknownURLSubmitsForAnalysis verifies the 404 path: the
// URL is posted for analysis and the current scan proceeds without signal.
func TestVirusTotal_UnknownURLSubmitsForAnalysis(t *testing.T) {
	var submissions atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/urls" {
			submissions.Add(1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "https://new.example", r.PostForm.Get("url"))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	vt, err := NewVirusTotal(vtConfig(srv.URL), testClient(), zap.NewNop())
	require.NoError(t, err)

	signal := vt.Lookup(context.Background(), "https://new.example")

	assert.False(t, signal.Available, "an unanalyzed URL carries no signal")
	assert.EqualValues(t, 1, submissions.Load())
}

// TestVirusTotal_TransientFailuresAreUnavailable verifies that every
// per-call failure folds into Available=false, never a clean verdict.
func TestVirusTotal_TransientFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"empty analysis stats", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{}}}}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			vt, err := NewVirusTotal(vtConfig(srv.URL), testClient(), zap.NewNop())
			require.NoError(t, err)

			signal := vt.Lookup(context.Background(), "https://example.com")
			assert.False(t, signal.Available)
			assert.False(t, signal.Malicious)
		})
	}
}

// TestVirusTotal_UnreachableAPI verifies a dead endpoint degrades cleanly.
func TestVirusTotal_UnreachableAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // port now refuses connections

	vt, err := NewVirusTotal(vtConfig(srv.URL), testClient(), zap.NewNop())
	require.NoError(t, err)

	signal := vt.Lookup(context.Background(), "https://example.com")
	assert.False(t, signal.Available)
}
