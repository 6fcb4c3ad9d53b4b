// File: internal/features/features.go
// Description: Feature extraction for scan targets. The extractor is the
// scan pipeline's view of the outside world: it fetches the page and computes
// the lexical and content features the classifier consumes.

package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/network"
)

// FetchKind classifies why a content fetch failed. The fusion stage maps
// each kind to a user-facing explanation.
type FetchKind string

const (
	FetchDNS       FetchKind = "dns"
	FetchTimeout   FetchKind = "timeout"
	FetchRefused   FetchKind = "refused"
	FetchTLS       FetchKind = "tls"
	FetchHTTP      FetchKind = "http"
	FetchMalformed FetchKind = "malformed"
	FetchOther     FetchKind = "other"
)

// FetchError reports that the target's content could not be retrieved. It is
// recovered locally into an Unknown scan result, never treated as fatal.
type FetchError struct {
	Kind FetchKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("content fetch failed (%s) for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Extractor produces the feature map for one URL, or a *FetchError when the
// target's content is unreachable.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (schemas.URLFeatures, error)
}

// ContentExtractor fetches the page over the shared pooled HTTP client and
// combines lexical URL features with lightweight content features. It is
// stateless and safe for concurrent use.
type ContentExtractor struct {
	client  *network.Client
	logger  *zap.Logger
	maxBody int64
}

// NewContentExtractor builds an extractor on top of the given client.
func NewContentExtractor(client *network.Client, logger *zap.Logger) *ContentExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentExtractor{
		client:  client,
		logger:  logger.Named("features"),
		maxBody: 2 << 20, // 2 MiB is plenty for landing pages
	}
}

// Extract implements Extractor.
func (x *ContentExtractor) Extract(ctx context.Context, rawURL string) (schemas.URLFeatures, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{Kind: FetchMalformed, URL: rawURL, Err: fmt.Errorf("not an absolute http(s) URL")}
	}

	feats := LexicalFeatures(parsed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchMalformed, URL: rawURL, Err: err}
	}

	resp, err := x.client.Do(req)
	if err != nil {
		fe := classifyFetchError(rawURL, err)
		x.logger.Debug("Content fetch failed",
			zap.String("url", rawURL),
			zap.String("kind", string(fe.Kind)),
			zap.Error(err))
		return nil, fe
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{
			Kind: FetchHTTP,
			URL:  rawURL,
			Err:  fmt.Errorf("server returned %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, x.maxBody))
	if err != nil {
		return nil, classifyFetchError(rawURL, err)
	}

	for k, v := range ContentFeatures(string(body)) {
		feats[k] = v
	}
	feats["fetch_status"] = float64(resp.StatusCode)
	feats["content_length"] = float64(len(body))

	return feats, nil
}

var (
	digitRe      = regexp.MustCompile(`\d`)
	specialRe    = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)
	pctEncodedRe = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

	securityKeywords = []string{"secure", "account", "verify", "update", "confirm", "banking", "signin"}
	loginKeywords    = []string{"login", "logon", "auth", "password", "credential"}

	formRe     = regexp.MustCompile(`(?i)<form\b`)
	passwordRe = regexp.MustCompile(`(?i)<input[^>]+type=["']?password`)
	iframeRe   = regexp.MustCompile(`(?i)<iframe\b`)
	scriptRe   = regexp.MustCompile(`(?i)<script\b`)
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// LexicalFeatures computes structural features from the URL alone. It never
// touches the network, so it is available even when the fetch fails.
func LexicalFeatures(u *url.URL) schemas.URLFeatures {
	host := u.Hostname()
	full := u.String()

	feats := schemas.URLFeatures{
		"url_length":      float64(len(full)),
		"has_https":       boolFeature(u.Scheme == "https"),
		"has_www":         boolFeature(strings.HasPrefix(host, "www.")),
		"domain_length":   float64(len(host)),
		"path_length":     float64(len(u.Path)),
		"query_length":    float64(len(u.RawQuery)),
		"fragment_length": float64(len(u.Fragment)),

		"digits_in_domain":    float64(len(digitRe.FindAllString(host, -1))),
		"special_chars_count": float64(len(specialRe.FindAllString(host, -1))),
		"hyphens_in_domain":   float64(strings.Count(host, "-")),
		"dots_in_domain":      float64(strings.Count(host, ".")),
		"subdomain_count":     float64(subdomainCount(host)),

		"has_ip_address":            boolFeature(net.ParseIP(host) != nil),
		"has_at_symbol":             boolFeature(strings.Contains(full, "@")),
		"has_double_slash_redirect": boolFeature(strings.Contains(u.Path, "//")),
		"query_param_count":         float64(len(u.Query())),
		"url_encoded_chars":         float64(len(pctEncodedRe.FindAllString(full, -1))),

		"has_security_keywords": boolFeature(containsAny(strings.ToLower(full), securityKeywords)),
		"has_login_keywords":    boolFeature(containsAny(strings.ToLower(full), loginKeywords)),
	}
	return feats
}

// ContentFeatures computes lightweight structural features from a fetched
// HTML body.
func ContentFeatures(body string) schemas.URLFeatures {
	title := ""
	if m := titleRe.FindStringSubmatch(body); len(m) == 2 {
		title = strings.TrimSpace(m[1])
	}
	return schemas.URLFeatures{
		"form_count":            float64(len(formRe.FindAllString(body, -1))),
		"password_input_count":  float64(len(passwordRe.FindAllString(body, -1))),
		"iframe_count":          float64(len(iframeRe.FindAllString(body, -1))),
		"script_count":          float64(len(scriptRe.FindAllString(body, -1))),
		"title_length":          float64(len(title)),
		"has_password_input":    boolFeature(passwordRe.MatchString(body)),
		"body_length_kilobytes": float64(len(body)) / 1024.0,
	}
}

func subdomainCount(host string) int {
	if net.ParseIP(host) != nil {
		return 0
	}
	parts := strings.Split(host, ".")
	// Everything left of the registrable domain counts as subdomain labels.
	if len(parts) <= 2 {
		return 0
	}
	return len(parts) - 2
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// classifyFetchError buckets a transport error into a FetchKind so the
// fusion stage can explain the failure to the user.
func classifyFetchError(rawURL string, err error) *FetchError {
	kind := FetchOther

	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.As(err, &dnsErr):
		kind = FetchDNS
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	case isRefused(err):
		kind = FetchRefused
	case isTLS(err):
		kind = FetchTLS
	}

	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}

func isRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strings.Contains(opErr.Err.Error(), "connection refused")
	}
	return strings.Contains(err.Error(), "connection refused")
}

func isTLS(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509:") ||
		strings.Contains(msg, "certificate")
}
