// Package enrichment gathers best-effort context for a lead: the client IP
// and the campaign attribution tags of the page it was submitted from.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultIPEchoURL = "https://api.ipify.org?format=json"
	defaultTimeout   = 3 * time.Second
)

// UTM holds campaign attribution tags.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
}

// ExtractUTM reads utm_source, utm_medium and utm_campaign from a page URL.
// Unparseable or empty URLs yield empty tags.
func ExtractUTM(pageURL string) UTM {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return UTM{}
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   strings.TrimSpace(q.Get("utm_source")),
		Medium:   strings.TrimSpace(q.Get("utm_medium")),
		Campaign: strings.TrimSpace(q.Get("utm_campaign")),
	}
}

// IPResolver looks up the public IP of the submitting client.
type IPResolver interface {
	LookupIP(ctx context.Context) (string, error)
}

// IPEchoConfig configures the IP echo client.
type IPEchoConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// IPEcho queries an unauthenticated service answering {"ip": "..."}.
type IPEcho struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewIPEcho creates an IP echo client with defaults applied.
func NewIPEcho(cfg IPEchoConfig) *IPEcho {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = defaultIPEchoURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &IPEcho{url: endpoint, timeout: timeout, httpClient: httpClient}
}

// LookupIP returns the echoed IP. The call is bounded by the configured
// timeout regardless of the caller's deadline.
func (c *IPEcho) LookupIP(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("enrichment: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("enrichment: ip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("enrichment: ip lookup status %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", fmt.Errorf("enrichment: decode ip: %w", err)
	}
	ip := strings.TrimSpace(body.IP)
	if net.ParseIP(ip) == nil {
		return "", errors.New("enrichment: echo returned no valid ip")
	}
	return ip, nil
}

// ClientIPFromRequest returns the caller address of r without the port.
// chi's RealIP middleware has already applied X-Forwarded-For/X-Real-IP.
func ClientIPFromRequest(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if net.ParseIP(addr) == nil {
		return ""
	}
	return addr
}
