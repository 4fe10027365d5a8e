// Package submission runs a lead through the pipeline: validation, the
// per-email throttle, enrichment, then primary delivery with a single
// fallback attempt.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/insurance-leads-platform/internal/enrichment"
	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

var tracer = otel.Tracer("leads.internal.submission")

const (
	defaultDeliveryTimeout = 12 * time.Second
	defaultIPTimeout       = 3 * time.Second
)

// Config wires the service. Primary, Fallback and Limiter are required.
type Config struct {
	Primary    Deliverer
	Fallback   Deliverer
	Limiter    ratelimit.Limiter
	Normalizer *leads.Normalizer
	// IPResolver is consulted only when the form carries no client IP.
	IPResolver      enrichment.IPResolver
	Journal         events.Journal
	Metrics         *metrics.LeadMetrics
	Logger          *logging.Logger
	Contact         Contact
	DeliveryTimeout time.Duration
	IPLookupTimeout time.Duration
	Now             func() time.Time
}

// Service is the submission orchestrator. It is safe for concurrent use.
type Service struct {
	primary         Deliverer
	fallback        Deliverer
	limiter         ratelimit.Limiter
	normalizer      *leads.Normalizer
	ip              enrichment.IPResolver
	journal         events.Journal
	metrics         *metrics.LeadMetrics
	logger          *logging.Logger
	contact         Contact
	deliveryTimeout time.Duration
	ipTimeout       time.Duration
	now             func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Primary == nil {
		return nil, errors.New("submission: primary deliverer is required")
	}
	if cfg.Fallback == nil {
		return nil, errors.New("submission: fallback deliverer is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("submission: rate limiter is required")
	}
	s := &Service{
		primary:         cfg.Primary,
		fallback:        cfg.Fallback,
		limiter:         cfg.Limiter,
		normalizer:      cfg.Normalizer,
		ip:              cfg.IPResolver,
		journal:         cfg.Journal,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		contact:         cfg.Contact,
		deliveryTimeout: cfg.DeliveryTimeout,
		ipTimeout:       cfg.IPLookupTimeout,
		now:             cfg.Now,
	}
	if s.normalizer == nil {
		s.normalizer = leads.NewNormalizer(nil)
	}
	if s.journal == nil {
		s.journal = events.NopJournal{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.deliveryTimeout <= 0 {
		s.deliveryTimeout = defaultDeliveryTimeout
	}
	if s.ipTimeout <= 0 {
		s.ipTimeout = defaultIPTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Submit runs the whole pipeline for one form and always returns a definite
// Result. Primary delivery is attempted strictly before the fallback, and the
// fallback runs at most once.
func (s *Service) Submit(ctx context.Context, form leads.RawFormInput, opts ...Option) Result {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "submission.submit")
	defer span.End()

	res := s.submit(ctx, form, o)

	span.SetAttributes(
		attribute.Bool("leads.success", res.Success),
		attribute.String("leads.method", string(res.Method)),
		attribute.String("leads.category", string(res.Category)),
	)
	if !res.Success {
		span.SetStatus(codes.Error, string(res.Category))
	}
	s.metrics.ObserveSubmission(res.Success, string(res.Method), string(res.Category))

	if res.Success && o.onSuccess != nil {
		o.onSuccess(res)
	}
	if !res.Success && o.onError != nil {
		o.onError(res)
	}
	return res
}

func (s *Service) submit(ctx context.Context, form leads.RawFormInput, o submitOptions) Result {
	// 1. validation, no network
	if v := leads.Validate(form, leads.ValidateOptions{RequireSubject: o.requireSubject}); !v.Valid() {
		return Result{
			Message:     msgInvalid,
			Category:    CategoryValidation,
			FieldErrors: v.Errors,
		}
	}

	// 2. per-email throttle, no network beyond the limiter backend
	email := leads.NormalizeEmail(form.Email)
	if !s.limiter.Allow(ctx, email, s.now()) {
		s.metrics.ObserveRateLimited()
		s.logger.Info("lead submission rate limited", "email", leads.MaskEmail(email))
		return Result{Message: msgRateLimited, Category: CategoryRateLimited}
	}

	// 3. enrichment
	meta := s.enrich(ctx, form)

	// 4. assemble
	record := s.assemble(form, meta)
	if err := record.Check(); err != nil {
		s.logger.Error("assembled lead failed invariants", "error", err)
		return Result{
			Message:  failureMessage(CategoryGeneric, s.contact),
			Category: CategoryGeneric,
			RawError: err.Error(),
		}
	}

	successMsg := msgSuccess
	if o.successMessage != "" {
		successMsg = o.successMessage
	}

	// 5. primary
	receipt, primaryErr := s.deliver(ctx, s.primary, record)
	if primaryErr == nil {
		s.logger.Info("lead delivered", "method", MethodPrimary, "adapter", s.primary.Name(), "lead_id", receipt.ID, "email", leads.MaskEmail(record.Email))
		return Result{Success: true, Message: successMsg, Method: MethodPrimary, LeadID: receipt.ID}
	}
	s.logger.Warn("primary delivery failed, trying fallback", "adapter", s.primary.Name(), "error", primaryErr)

	// 6. fallback, exactly once
	_, fallbackErr := s.deliver(ctx, s.fallback, record)
	if fallbackErr == nil {
		res := Result{Success: true, Message: successMsg, Method: MethodFallback, Note: noteFallback}
		if id := s.recordFallback(ctx, record, primaryErr); id != "" {
			res.LeadID = id
		}
		s.logger.Info("lead delivered", "method", MethodFallback, "adapter", s.fallback.Name(), "email", leads.MaskEmail(record.Email))
		return res
	}

	// 7. total failure
	category := Classify(primaryErr, fallbackErr)
	msg := failureMessage(category, s.contact)
	if o.errorMessage != "" {
		msg = o.errorMessage
	}
	raw := fmt.Sprintf("primary (%s): %v; fallback (%s): %v", s.primary.Name(), primaryErr, s.fallback.Name(), fallbackErr)
	s.logger.Error("lead delivery failed on all paths", "category", category, "error", raw, "email", leads.MaskEmail(record.Email))
	return Result{Message: msg, Category: category, RawError: raw}
}

// enrich runs the IP lookup and UTM extraction concurrently. Neither can fail
// the submission.
func (s *Service) enrich(ctx context.Context, form leads.RawFormInput) *leads.Metadata {
	var (
		ip  string
		utm enrichment.UTM
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ip = s.lookupIP(gctx, form.ClientIP)
		return nil
	})
	g.Go(func() error {
		utm = enrichment.ExtractUTM(form.SourcePage)
		return nil
	})
	_ = g.Wait()

	meta := &leads.Metadata{
		SourcePage:  strings.TrimSpace(form.SourcePage),
		UserAgent:   strings.TrimSpace(form.UserAgent),
		UTMSource:   utm.Source,
		UTMMedium:   utm.Medium,
		UTMCampaign: utm.Campaign,
		ClientIP:    ip,
	}
	if meta.Empty() {
		return nil
	}
	return meta
}

func (s *Service) lookupIP(ctx context.Context, hint string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		s.metrics.ObserveIPLookup("skipped")
		return hint
	}
	if s.ip == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.ipTimeout)
	defer cancel()
	ip, err := s.ip.LookupIP(ctx)
	if err != nil {
		s.metrics.ObserveIPLookup("error")
		s.logger.Debug("client ip unavailable", "error", err)
		return ""
	}
	s.metrics.ObserveIPLookup("ok")
	return ip
}

func (s *Service) assemble(form leads.RawFormInput, meta *leads.Metadata) leads.LeadRecord {
	message := strings.TrimSpace(form.Message)
	if message == "" {
		message = leads.DefaultMessage
	}
	return leads.LeadRecord{
		Name:     strings.TrimSpace(form.Name),
		Email:    leads.NormalizeEmail(form.Email),
		Phone:    strings.TrimSpace(form.Phone),
		Message:  message,
		Operator: s.normalizer.Normalize(strings.TrimSpace(form.Operator)),
		Subject:  strings.TrimSpace(form.Subject),
		Metadata: meta,
		Status:   leads.StatusNew,
		Priority: leads.DefaultPriority,
	}
}

// deliver bounds a single attempt by the delivery timeout.
func (s *Service) deliver(ctx context.Context, d Deliverer, record leads.LeadRecord) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	started := time.Now()
	receipt, err := d.Deliver(ctx, record)
	s.metrics.ObserveDelivery(d.Name(), err, time.Since(started).Seconds())
	return receipt, err
}

// recordFallback journals a lead that skipped the primary store. Journal
// failures are logged and never change the outcome.
func (s *Service) recordFallback(ctx context.Context, record leads.LeadRecord, primaryErr error) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout)
	defer cancel()

	id, err := s.journal.Record(ctx, events.Entry{
		Lead:         record,
		Method:       s.fallback.Name(),
		PrimaryError: primaryErr.Error(),
	})
	if _, nop := s.journal.(events.NopJournal); !nop {
		s.metrics.ObserveJournal(err)
	}
	if err != nil {
		s.logger.Error("failed to journal fallback delivery", "error", err, "email", leads.MaskEmail(record.Email))
		return ""
	}
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// ConnectivityReport is the outcome of a read-only probe of the primary store.
type ConnectivityReport struct {
	Reachable bool          `json:"reachable"`
	Adapter   string        `json:"adapter"`
	Latency   time.Duration `json:"latency_ns"`
	Category  Category      `json:"category,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// TestConnectivity probes the primary store without writing anything.
func (s *Service) TestConnectivity(ctx context.Context) ConnectivityReport {
	report := ConnectivityReport{Adapter: s.primary.Name()}
	prober, ok := s.primary.(Prober)
	if !ok {
		report.Error = "primary deliverer does not support probing"
		report.Category = CategoryConfig
		return report
	}

	ctx, span := tracer.Start(ctx, "submission.probe")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	started := time.Now()
	err := prober.Probe(ctx)
	report.Latency = time.Since(started)
	if err != nil {
		span.RecordError(err)
		report.Error = err.Error()
		report.Category = Classify(err)
		s.logger.Warn("primary store probe failed", "error", err)
		return report
	}
	report.Reachable = true
	return report
}

// Replay inserts a journaled lead into the primary store. A duplicate means
// the lead already landed there, which counts as done.
func (s *Service) Replay(ctx context.Context, record leads.LeadRecord) error {
	_, err := s.deliver(ctx, s.primary, record)
	if err != nil && Classify(err) == CategoryDuplicate {
		return nil
	}
	return err
}

var _ events.ReplayHandler = (*Service)(nil)
