package mainconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/insurance-leads-platform/internal/config"
	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/internal/submission"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

func baseConfig() *appconfig.Config {
	return &appconfig.Config{
		LeadsStoreURL:          "https://store.example.com",
		LeadsStoreKey:          "anon",
		LeadsStoreTable:        "leads",
		FallbackProvider:       appconfig.FallbackRelay,
		RelayEndpoint:          "https://relay.example.com/ajax",
		RelayDestinationEmail:  "contato@corretora.com.br",
		DeliveryTimeout:        5 * time.Second,
		IPLookupTimeout:        time.Second,
		RateLimitBackend:       "memory",
		RateLimitWindow:        time.Minute,
		RateLimitMax:           5,
		HTTPRateLimitPerMinute: 30,
		JournalBackend:         "none",
	}
}

func TestBuildPipelineMemoryDefaults(t *testing.T) {
	p, err := BuildPipeline(context.Background(), baseConfig(), prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Service)
	assert.IsType(t, events.NopJournal{}, p.Journal)
	assert.IsType(t, &ratelimit.Window{}, p.IPLimiter)
}

func TestBuildPipelineBoltJournal(t *testing.T) {
	cfg := baseConfig()
	cfg.JournalBackend = "bolt"
	cfg.JournalPath = filepath.Join(t.TempDir(), "nested", "journal.db")

	p, err := BuildPipeline(context.Background(), cfg, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &events.BoltJournal{}, p.Journal)
	require.NoError(t, p.Close())
}

func TestBuildPipelineRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RateLimitBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	p, err := BuildPipeline(context.Background(), cfg, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &ratelimit.RedisWindow{}, p.IPLimiter)
}

func TestBuildPipelineDisablesIPGuard(t *testing.T) {
	cfg := baseConfig()
	cfg.HTTPRateLimitPerMinute = 0

	p, err := BuildPipeline(context.Background(), cfg, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	defer p.Close()
	assert.Nil(t, p.IPLimiter)
}

func TestBuildFallbackProviders(t *testing.T) {
	logger := logging.New("error")

	tests := []struct {
		name   string
		mutate func(*appconfig.Config)
		want   string
	}{
		{"relay", func(c *appconfig.Config) {}, "relay"},
		{"sendgrid", func(c *appconfig.Config) {
			c.FallbackProvider = appconfig.FallbackSendGrid
			c.SendGridAPIKey = "SG.key"
			c.SendGridFromEmail = "site@corretora.com.br"
		}, "sendgrid"},
		{"smtp", func(c *appconfig.Config) {
			c.FallbackProvider = appconfig.FallbackSMTP
			c.SMTPAddr = "localhost:2525"
			c.SMTPFromEmail = "site@corretora.com.br"
		}, "smtp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			d, err := buildFallback(context.Background(), cfg, logger)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestBuildFallbackSES(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := baseConfig()
	cfg.FallbackProvider = appconfig.FallbackSES
	cfg.SESFromEmail = "site@corretora.com.br"
	cfg.AWSRegion = "sa-east-1"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"
	cfg.AWSEndpointOverride = "http://localhost:4566"

	d, err := buildFallback(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, submission.MailDeliverer{}, d)
	assert.Equal(t, "ses", d.Name())
}

func TestBuildFallbackMissingSender(t *testing.T) {
	cfg := baseConfig()
	cfg.FallbackProvider = appconfig.FallbackSendGrid

	_, err := buildFallback(context.Background(), cfg, logging.New("error"))
	assert.Error(t, err)
}

func TestBuildPipelineAliasesFile(t *testing.T) {
	cfg := baseConfig()
	cfg.OperatorAliasesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := BuildPipeline(context.Background(), cfg, prometheus.NewRegistry(), logging.New("error"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  notredame: notredame-intermedica\n"), 0o600))
	cfg.OperatorAliasesFile = path
	p, err := BuildPipeline(context.Background(), cfg, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	p.Close()
}
