// Package relay is the fallback delivery path: a hosted form-to-email relay
// (FormSubmit-style) that mails the lead to the brokerage inbox.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const (
	defaultEndpoint = "https://formsubmit.co/ajax"
	defaultSubject  = "Novo lead pelo site"
	defaultTemplate = "table"
)

var tracer = otel.Tracer("leads.internal.relay")

// Config controls the relay client.
type Config struct {
	// Endpoint is the relay base URL; the destination address is appended
	// as the last path segment.
	Endpoint         string
	DestinationEmail string
	Subject          string
	Template         string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Logger           *logging.Logger
}

// Client posts leads to the relay as a standard form submission.
type Client struct {
	endpoint    string
	destination string
	subject     string
	template    string
	httpClient  *http.Client
	logger      *logging.Logger
}

// Ack is the relay's acceptance of a submission.
type Ack struct {
	StatusCode int
	Message    string
}

// New creates a relay client. A destination address is required.
func New(cfg Config) (*Client, error) {
	destination := strings.TrimSpace(cfg.DestinationEmail)
	if destination == "" {
		return nil, errors.New("relay: destination email is required")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	template := strings.TrimSpace(cfg.Template)
	if template == "" {
		template = defaultTemplate
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
	return &Client{
		endpoint:    endpoint,
		destination: destination,
		subject:     subject,
		template:    template,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Form builds the key/value payload: every non-empty record field plus the
// relay's control fields.
func (c *Client) Form(record leads.LeadRecord) url.Values {
	form := url.Values{}
	for _, f := range record.Fields() {
		form.Set(f[0], f[1])
	}
	form.Set("_subject", fmt.Sprintf("%s - %s", c.subject, record.Operator))
	form.Set("_captcha", "false")
	form.Set("_template", c.template)
	form.Set("_replyto", record.Email)
	return form
}

// Send posts the lead and waits for the relay's answer. Any non-2xx status,
// or a JSON answer with success=false, is a *RelayError.
func (c *Client) Send(ctx context.Context, record leads.LeadRecord) (*Ack, error) {
	ctx, span := tracer.Start(ctx, "relay.send")
	defer span.End()
	span.SetAttributes(attribute.String("leads.operator", record.Operator))

	target := c.endpoint + "/" + url.PathEscape(c.destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(c.Form(record).Encode()))
	if err != nil {
		return nil, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/html;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay unreachable")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("relay: %w", ctxErr)
		}
		return nil, fmt.Errorf("relay: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("relay: read response: %w", err)
	}

	ack, err := interpret(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay rejected")
		c.logger.Warn("relay rejected lead", "status", resp.StatusCode, "error", err)
		return nil, err
	}
	c.logger.Info("relay accepted lead", "status", resp.StatusCode, "email", leads.MaskEmail(record.Email))
	return ack, nil
}

type jsonAnswer struct {
	Success any    `json:"success"`
	Message string `json:"message"`
}

func interpret(status int, contentType string, body []byte) (*Ack, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	isJSON := mediaType == "application/json"
	ok := status >= 200 && status < 300

	if isJSON {
		var ans jsonAnswer
		if err := json.Unmarshal(body, &ans); err == nil {
			if ok && (ans.Success == nil || truthy(ans.Success)) {
				return &Ack{StatusCode: status, Message: ans.Message}, nil
			}
			return nil, &RelayError{StatusCode: status, Detail: ans.Message}
		}
	}

	if ok {
		return &Ack{StatusCode: status}, nil
	}
	return nil, &RelayError{StatusCode: status, Detail: extractHTMLError(body)}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}

// extractHTMLError pulls a human-readable reason out of the relay's HTML
// error page.
func extractHTMLError(body []byte) string {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	for _, sel := range []string{".alert", ".error", "main h1", "h1", "title"} {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return ""
}

// RelayError is a rejection or failure reported by the relay.
type RelayError struct {
	StatusCode int
	Detail     string
}

func (e *RelayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("relay: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("relay: HTTP %d", e.StatusCode)
}
