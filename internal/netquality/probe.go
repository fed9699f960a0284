package netquality

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnx/live-backend/pkg/response"
)

const (
	// DefaultProbeBytes is the payload size used when the client does not ask for one.
	DefaultProbeBytes = 256 * 1024
	// FallbackBandwidthKbps is assumed when the probe fails.
	FallbackBandwidthKbps = 1000
)

// HTTPProber measures download bandwidth against GET /api/network/probe.
type HTTPProber struct {
	url    string
	size   int
	client *http.Client
}

// NewHTTPProber creates a prober for baseURL (the server root).
func NewHTTPProber(baseURL string, size int, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if size <= 0 {
		size = DefaultProbeBytes
	}
	return &HTTPProber{url: baseURL + "/api/network/probe", size: size, client: client}
}

// Probe downloads the payload and returns the observed throughput in kbps.
func (p *HTTPProber) Probe(ctx context.Context) (float64, error) {
	u := fmt.Sprintf("%s?size=%d&t=%d", p.url, p.size, time.Now().UnixNano())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe status %d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("probe read: %w", err)
	}
	secs := time.Since(start).Seconds()
	if secs <= 0 || n == 0 {
		return 0, fmt.Errorf("probe: empty measurement")
	}
	return float64(n) * 8 / 1000 / secs, nil
}

// ProbeHandler serves GET /api/network/probe?size=n with n random bytes.
func ProbeHandler(maxBytes int) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(c *gin.Context) {
		size := DefaultProbeBytes
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				response.BadRequest(c, "invalid size")
				return
			}
			size = n
		}
		if size > maxBytes {
			size = maxBytes
		}
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Type", "application/octet-stream")
		c.Header("Content-Length", strconv.Itoa(size))
		c.Status(http.StatusOK)
		_, _ = io.CopyN(c.Writer, rand.Reader, int64(size))
	}
}
