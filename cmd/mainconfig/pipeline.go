package mainconfig

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/insurance-leads-platform/internal/config"
	"github.com/wolfman30/insurance-leads-platform/internal/datastore"
	"github.com/wolfman30/insurance-leads-platform/internal/enrichment"
	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/notify"
	"github.com/wolfman30/insurance-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/internal/relay"
	"github.com/wolfman30/insurance-leads-platform/internal/submission"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

// Pipeline is the submission service plus the resources it owns.
type Pipeline struct {
	Service   *submission.Service
	Journal   events.Journal
	Metrics   *metrics.LeadMetrics
	IPLimiter ratelimit.Limiter

	closers []func() error
}

// Close releases pools and files opened by BuildPipeline.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildPipeline wires the submission service from configuration. A nil
// registerer uses the Prometheus default registry.
func BuildPipeline(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Default()
	}
	p := &Pipeline{Metrics: metrics.NewLeadMetrics(reg)}
	fail := func(err error) (*Pipeline, error) {
		_ = p.Close()
		return nil, err
	}

	var aliases map[string]string
	if cfg.OperatorAliasesFile != "" {
		loaded, err := leads.LoadAliases(cfg.OperatorAliasesFile)
		if err != nil {
			return fail(err)
		}
		aliases = loaded
	}

	limiter, err := p.buildLimiters(cfg, logger)
	if err != nil {
		return fail(err)
	}

	store, err := datastore.New(datastore.Config{
		BaseURL: cfg.LeadsStoreURL,
		APIKey:  cfg.LeadsStoreKey,
		Table:   cfg.LeadsStoreTable,
		Timeout: cfg.DeliveryTimeout,
		Logger:  logger.WithComponent("datastore"),
	})
	if err != nil {
		return fail(err)
	}

	fallback, err := buildFallback(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	journal, err := p.buildJournal(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	p.Journal = journal

	svc, err := submission.NewService(submission.Config{
		Primary:    submission.DatastoreDeliverer{Client: store},
		Fallback:   fallback,
		Limiter:    limiter,
		Normalizer: leads.NewNormalizer(aliases),
		IPResolver: enrichment.NewIPEcho(enrichment.IPEchoConfig{URL: cfg.IPEchoURL, Timeout: cfg.IPLookupTimeout}),
		Journal:         journal,
		Metrics:         p.Metrics,
		Logger:          logger.WithComponent("submission"),
		Contact:         submission.Contact{Phone: cfg.ContactPhone, WhatsApp: cfg.ContactWhatsApp},
		DeliveryTimeout: cfg.DeliveryTimeout,
		IPLookupTimeout: cfg.IPLookupTimeout,
	})
	if err != nil {
		return fail(err)
	}
	p.Service = svc

	logger.Info("submission pipeline ready",
		"fallback", fallback.Name(),
		"rate_limit_backend", cfg.RateLimitBackend,
		"journal_backend", cfg.JournalBackend,
	)
	return p, nil
}

func (p *Pipeline) buildLimiters(cfg *appconfig.Config, logger *logging.Logger) (ratelimit.Limiter, error) {
	emailCfg := ratelimit.Config{
		Window:     cfg.RateLimitWindow,
		Max:        cfg.RateLimitMax,
		Capacity:   cfg.RateLimitCapacity,
		EvictBatch: cfg.RateLimitEvictBatch,
	}
	ipCfg := ratelimit.Config{Window: time.Minute, Max: cfg.HTTPRateLimitPerMinute}

	if cfg.RateLimitBackend != "redis" {
		if cfg.HTTPRateLimitPerMinute > 0 {
			p.IPLimiter = ratelimit.NewWindow(ipCfg)
		}
		return ratelimit.NewWindow(emailCfg), nil
	}

	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	p.closers = append(p.closers, client.Close)

	if cfg.HTTPRateLimitPerMinute > 0 {
		p.IPLimiter = ratelimit.NewRedisWindow(client, ipCfg, logger.WithComponent("ratelimit"))
	}
	return ratelimit.NewRedisWindow(client, emailCfg, logger.WithComponent("ratelimit")), nil
}

func (p *Pipeline) buildJournal(ctx context.Context, cfg *appconfig.Config) (events.Journal, error) {
	switch cfg.JournalBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("journal: connect postgres: %w", err)
		}
		p.closers = append(p.closers, func() error { pool.Close(); return nil })
		return events.NewPostgresJournal(pool), nil
	case "bolt":
		journal, err := events.OpenBoltJournal(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, journal.Close)
		return journal, nil
	default:
		return events.NopJournal{}, nil
	}
}

func buildFallback(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (submission.Deliverer, error) {
	var sender notify.EmailSender
	switch cfg.FallbackProvider {
	case appconfig.FallbackSendGrid:
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger.WithComponent("sendgrid"))
		if sg == nil {
			return nil, errors.New("sendgrid fallback requires SENDGRID_API_KEY")
		}
		sender = sg
	case appconfig.FallbackSES:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sender = notify.NewSESSender(NewSESClient(awsCfg, cfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger.WithComponent("ses"))
	case appconfig.FallbackSMTP:
		smtpSender := notify.NewSMTPSender(notify.SMTPConfig{
			Addr:        cfg.SMTPAddr,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			FromEmail:   cfg.SMTPFromEmail,
			FromName:    cfg.SMTPFromName,
			ImplicitTLS: cfg.SMTPImplicitTLS,
		}, logger.WithComponent("smtp"))
		if smtpSender == nil {
			return nil, errors.New("smtp fallback requires SMTP_ADDR")
		}
		sender = smtpSender
	default:
		client, err := relay.New(relay.Config{
			Endpoint:         cfg.RelayEndpoint,
			DestinationEmail: cfg.RelayDestinationEmail,
			Subject:          cfg.RelaySubject,
			Timeout:          cfg.DeliveryTimeout,
			Logger:           logger.WithComponent("relay"),
		})
		if err != nil {
			return nil, err
		}
		return submission.RelayDeliverer{Client: client}, nil
	}

	mailer, err := notify.NewLeadMailer(sender, notify.LeadMailerConfig{
		To:      cfg.RelayDestinationEmail,
		Subject: cfg.RelaySubject,
	}, logger.WithComponent("mailer"))
	if err != nil {
		return nil, err
	}
	return submission.MailDeliverer{Mailer: mailer, Provider: cfg.FallbackProvider}, nil
}
