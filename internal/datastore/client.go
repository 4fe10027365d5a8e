// Package datastore is the primary delivery path: a client for the hosted
// PostgREST-style data store that holds submitted leads.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const (
	defaultTable     = "leads"
	defaultUserAgent = "insurance-leads-gateway/0.1"
	restPath         = "/rest/v1/"
)

var tracer = otel.Tracer("leads.internal.datastore")

// Config controls how the data store client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Table      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client inserts lead rows through the store's REST interface.
type Client struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// ServerRecord is the created row echoed back by the store.
type ServerRecord struct {
	ID        string          `json:"-"`
	CreatedAt time.Time       `json:"-"`
	Raw       json.RawMessage `json:"-"`
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("datastore: base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("datastore: invalid base URL: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("datastore: API key is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		table:      table,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// Insert creates one lead row and returns the stored representation.
// There is no retry: the caller decides what happens on failure.
func (c *Client) Insert(ctx context.Context, record leads.LeadRecord) (*ServerRecord, error) {
	ctx, span := tracer.Start(ctx, "datastore.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("leads.operator", record.Operator),
		attribute.String("datastore.table", c.table),
	)

	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("datastore: marshal record: %w", err)
	}

	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	data, err := c.invoke(ctx, http.MethodPost, nil, body, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}

	rec, err := decodeRecord(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("leads.id", rec.ID))
	c.logger.Debug("lead row created", "table", c.table, "id", rec.ID)
	return rec, nil
}

// Probe performs a read-only request to confirm the store is reachable and
// the credentials can see the leads table.
func (c *Client) Probe(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "datastore.probe")
	defer span.End()

	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	if _, err := c.invoke(ctx, http.MethodGet, q, nil, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return err
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, query url.Values, body []byte, headers http.Header) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("datastore: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("datastore: %w", ctxErr)
		}
		return nil, fmt.Errorf("datastore: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("datastore: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) buildURL(query url.Values) string {
	full := c.baseURL + restPath + url.PathEscape(c.table)
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// decodeRecord accepts either the array PostgREST returns for inserts or a
// single object.
func decodeRecord(data []byte) (*ServerRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("datastore: empty response body")
	}

	var row map[string]any
	switch trimmed[0] {
	case '[':
		var rows []map[string]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("datastore: decode response: %w", err)
		}
		if len(rows) == 0 {
			return nil, errors.New("datastore: insert returned no rows")
		}
		row = rows[0]
	case '{':
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, fmt.Errorf("datastore: decode response: %w", err)
		}
	default:
		return nil, errors.New("datastore: unexpected response body")
	}

	raw, _ := json.Marshal(row)
	rec := &ServerRecord{Raw: raw}
	switch id := row["id"].(type) {
	case string:
		rec.ID = id
	case float64:
		rec.ID = fmt.Sprintf("%.0f", id)
	}
	if ts, ok := row["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.CreatedAt = parsed
		}
	}
	return rec, nil
}
