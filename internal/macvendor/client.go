// Package macvendor resolves MAC addresses to hardware manufacturers through
// the macvendors.com lookup API. The upstream service enforces a hard
// one-request-per-second quota, so the client serializes requests through a
// rate limiter and keeps an OUI-keyed cache in front of it.
package macvendor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dagolovach/ise-session-manager/internal/metrics"
)

// Unknown is reported whenever a vendor cannot be resolved, regardless of
// whether the lookup failed, timed out or simply found nothing.
const Unknown = "Unknown"

const (
	lookupTimeout = 5 * time.Second
	ouiCacheSize  = 1024
)

// Client looks up MAC vendors with caching and rate limiting.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lru.Cache[string, string]
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a vendor lookup client for the given API base URL.
// The metrics argument may be nil.
func NewClient(baseURL string, m *metrics.Metrics, logger *slog.Logger) *Client {
	cache, _ := lru.New[string, string](ouiCacheSize)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: lookupTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// Lookup resolves the vendor for a MAC address. It never returns an error:
// any failure degrades to Unknown. Cache hits bypass both the HTTP call and
// the rate limiter; issuing fewer requests than the quota is always allowed.
func (c *Client) Lookup(ctx context.Context, mac string) string {
	prefix := ouiPrefix(mac)
	if vendor, ok := c.cache.Get(prefix); ok {
		c.logger.Debug("Vendor cache hit", "mac", mac, "oui", prefix, "vendor", vendor)
		return vendor
	}

	// The quota is an upstream contract, not a performance knob. Every
	// request that reaches the wire goes through the limiter.
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Debug("Vendor lookup canceled while waiting for rate limiter", "mac", mac, "error", err)
		return Unknown
	}

	if c.metrics != nil {
		c.metrics.IncrementVendorLookups()
	}

	vendor, err := c.fetch(ctx, mac)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncrementVendorLookupErrors()
		}
		c.logger.Debug("Vendor lookup failed", "mac", mac, "error", err)
		return Unknown
	}

	c.cache.Add(prefix, vendor)
	return vendor
}

// fetch performs the actual API request.
func (c *Client) fetch(ctx context.Context, mac string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, mac)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vendor API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	vendor := strings.TrimSpace(string(body))
	if vendor == "" {
		return "", fmt.Errorf("vendor API returned empty body")
	}

	return vendor, nil
}

// ouiPrefix reduces a MAC to its six-hex-digit vendor prefix, which is the
// granularity the upstream database resolves at.
func ouiPrefix(mac string) string {
	hex := make([]rune, 0, 6)
	for _, r := range strings.ToUpper(mac) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			hex = append(hex, r)
			if len(hex) == 6 {
				break
			}
		}
	}
	if len(hex) == 0 {
		return strings.ToUpper(mac)
	}
	return string(hex)
}
