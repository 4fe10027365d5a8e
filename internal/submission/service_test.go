package submission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/insurance-leads-platform/internal/datastore"
	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/observability/metrics"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

type stubDeliverer struct {
	name  string
	id    string
	err   error
	block bool

	mu      sync.Mutex
	records []leads.LeadRecord
}

func (s *stubDeliverer) Name() string { return s.name }

func (s *stubDeliverer) Deliver(ctx context.Context, record leads.LeadRecord) (Receipt, error) {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return Receipt{}, ctx.Err()
	}
	if s.err != nil {
		return Receipt{}, s.err
	}
	return Receipt{ID: s.id}, nil
}

func (s *stubDeliverer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *stubDeliverer) last() leads.LeadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[len(s.records)-1]
}

type probingDeliverer struct {
	stubDeliverer
	probeErr error
}

func (p *probingDeliverer) Probe(context.Context) error { return p.probeErr }

type memJournal struct {
	mu      sync.Mutex
	entries []events.Entry
	err     error
}

func (j *memJournal) Record(_ context.Context, entry events.Entry) (uuid.UUID, error) {
	if j.err != nil {
		return uuid.Nil, j.err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.ID = uuid.New()
	j.entries = append(j.entries, entry)
	return entry.ID, nil
}

func (j *memJournal) Pending(context.Context, int) ([]events.Entry, error) { return j.entries, nil }

func (j *memJournal) MarkProcessed(context.Context, uuid.UUID) (bool, error) { return true, nil }

type stubIP struct {
	ip    string
	err   error
	delay time.Duration
	calls int
}

func (s *stubIP) LookupIP(ctx context.Context) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.ip, s.err
}

type fixture struct {
	primary  *stubDeliverer
	fallback *stubDeliverer
	journal  *memJournal
	ip       *stubIP
	registry *prometheus.Registry
	cfg      Config
}

func newFixture() *fixture {
	f := &fixture{
		primary:  &stubDeliverer{name: "datastore", id: "row-1"},
		fallback: &stubDeliverer{name: "relay"},
		journal:  &memJournal{},
		ip:       &stubIP{ip: "203.0.113.7"},
		registry: prometheus.NewRegistry(),
	}
	f.cfg = Config{
		Primary:         f.primary,
		Fallback:        f.fallback,
		Limiter:         ratelimit.NewWindow(ratelimit.DefaultConfig()),
		IPResolver:      f.ip,
		Journal:         f.journal,
		Metrics:         metrics.NewLeadMetrics(f.registry),
		Logger:          logging.New("error"),
		Contact:         Contact{Phone: "(11) 4000-1234", WhatsApp: "+55 11 94000-1234"},
		DeliveryTimeout: time.Second,
		IPLookupTimeout: 50 * time.Millisecond,
	}
	return f
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(f.cfg)
	require.NoError(t, err)
	return svc
}

func seriesCount(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func anaForm() leads.RawFormInput {
	return leads.RawFormInput{
		Name:     "Ana Silva",
		Email:    "ANA@Example.com",
		Phone:    "(11) 98888-7777",
		Operator: "Amil",
		Subject:  "plano",
	}
}

func TestSubmitNormalizesRecord(t *testing.T) {
	f := newFixture()
	res := f.service(t).Submit(context.Background(), anaForm())

	require.True(t, res.Success)
	assert.Equal(t, MethodPrimary, res.Method)
	assert.Equal(t, "row-1", res.LeadID)
	assert.Equal(t, msgSuccess, res.Message)
	assert.Equal(t, 0, f.fallback.calls())

	rec := f.primary.last()
	assert.Equal(t, "ana@example.com", rec.Email)
	assert.Equal(t, "amil", rec.Operator)
	assert.Equal(t, leads.StatusNew, rec.Status)
	assert.Equal(t, 3, rec.Priority)
	assert.Equal(t, "plano", rec.Subject)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "203.0.113.7", rec.Metadata.ClientIP)
}

func TestSubmitStripsEmptyFields(t *testing.T) {
	f := newFixture()
	f.cfg.IPResolver = nil
	form := anaForm()
	form.Subject = "  "
	form.Message = ""

	res := f.service(t).Submit(context.Background(), form)
	require.True(t, res.Success)

	rec := f.primary.last()
	assert.Equal(t, leads.DefaultMessage, rec.Message)
	assert.Nil(t, rec.Metadata)

	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.NotContains(t, fields, "subject")
	assert.NotContains(t, fields, "metadata")
	assert.Equal(t, leads.DefaultMessage, fields["message"])
}

func TestSubmitEnrichesFromSourcePage(t *testing.T) {
	f := newFixture()
	form := anaForm()
	form.SourcePage = "https://corretora.com.br/amil?utm_source=google&utm_medium=cpc&utm_campaign=verao"
	form.UserAgent = "Mozilla/5.0"
	form.ClientIP = "198.51.100.4"

	res := f.service(t).Submit(context.Background(), form)
	require.True(t, res.Success)

	meta := f.primary.last().Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "google", meta.UTMSource)
	assert.Equal(t, "cpc", meta.UTMMedium)
	assert.Equal(t, "verao", meta.UTMCampaign)
	assert.Equal(t, "Mozilla/5.0", meta.UserAgent)
	assert.Equal(t, "198.51.100.4", meta.ClientIP)
	assert.Equal(t, 0, f.ip.calls, "known client ip skips the echo lookup")
}

func TestSubmitSlowIPLookupIsOmitted(t *testing.T) {
	f := newFixture()
	f.ip.delay = 5 * time.Second

	started := time.Now()
	res := f.service(t).Submit(context.Background(), anaForm())
	require.True(t, res.Success)
	assert.Less(t, time.Since(started), time.Second)
	assert.Nil(t, f.primary.last().Metadata)
}

func TestSubmitFailedIPLookupIsSilent(t *testing.T) {
	f := newFixture()
	f.ip.err = errors.New("blocked")

	res := f.service(t).Submit(context.Background(), anaForm())
	require.True(t, res.Success)
	assert.Nil(t, f.primary.last().Metadata)
}

func TestSubmitValidationMakesNoCalls(t *testing.T) {
	f := newFixture()
	var gotErr Result
	res := f.service(t).Submit(context.Background(), leads.RawFormInput{Email: "nope"}, WithOnError(func(r Result) { gotErr = r }))

	assert.False(t, res.Success)
	assert.Equal(t, CategoryValidation, res.Category)
	assert.Contains(t, res.FieldErrors, "name")
	assert.Contains(t, res.FieldErrors, "email")
	assert.Contains(t, res.FieldErrors, "phone")
	assert.Equal(t, 0, f.primary.calls())
	assert.Equal(t, 0, f.ip.calls)
	assert.Equal(t, res, gotErr)
}

func TestSubmitRequireSubject(t *testing.T) {
	f := newFixture()
	form := anaForm()
	form.Subject = ""

	res := f.service(t).Submit(context.Background(), form, WithRequireSubject(true))
	assert.False(t, res.Success)
	assert.Contains(t, res.FieldErrors, "subject")
}

func TestSubmitRateLimitSixthAttempt(t *testing.T) {
	f := newFixture()
	svc := f.service(t)

	for i := 0; i < 5; i++ {
		form := anaForm()
		if i%2 == 0 {
			form.Email = "  ana@example.COM "
		}
		res := svc.Submit(context.Background(), form)
		require.True(t, res.Success, "attempt %d", i+1)
	}

	res := svc.Submit(context.Background(), anaForm())
	assert.False(t, res.Success)
	assert.Equal(t, CategoryRateLimited, res.Category)
	assert.Equal(t, msgRateLimited, res.Message)
	assert.Equal(t, 5, f.primary.calls(), "sixth attempt must not reach delivery")
	assert.Equal(t, 0, f.fallback.calls())

	other := anaForm()
	other.Email = "bia@example.com"
	assert.True(t, svc.Submit(context.Background(), other).Success)
}

func TestSubmitFallsBackWhenPrimaryFails(t *testing.T) {
	f := newFixture()
	f.primary.err = &datastore.APIError{StatusCode: 500, Message: "internal"}

	var gotOK Result
	res := f.service(t).Submit(context.Background(), anaForm(), WithOnSuccess(func(r Result) { gotOK = r }))

	require.True(t, res.Success)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Equal(t, noteFallback, res.Note)
	assert.Equal(t, 1, f.primary.calls())
	assert.Equal(t, 1, f.fallback.calls())
	assert.Equal(t, f.primary.last(), f.fallback.last(), "fallback receives the same record")
	assert.Equal(t, res, gotOK)

	require.Len(t, f.journal.entries, 1)
	entry := f.journal.entries[0]
	assert.Equal(t, "relay", entry.Method)
	assert.Equal(t, "datastore: internal (status=500)", entry.PrimaryError)
	assert.Equal(t, entry.ID.String(), res.LeadID)
}

func TestSubmitJournalFailureKeepsSuccess(t *testing.T) {
	f := newFixture()
	f.primary.err = errors.New("down")
	f.journal.err = errors.New("disk full")

	res := f.service(t).Submit(context.Background(), anaForm())
	assert.True(t, res.Success)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Empty(t, res.LeadID)
	assert.Equal(t, 1, seriesCount(t, f.registry, "leads_journal_writes_total"))
}

func TestSubmitPrimaryTimeoutFallsThrough(t *testing.T) {
	f := newFixture()
	f.primary.block = true
	f.cfg.DeliveryTimeout = 30 * time.Millisecond

	res := f.service(t).Submit(context.Background(), anaForm())
	require.True(t, res.Success)
	assert.Equal(t, MethodFallback, res.Method)
}

func TestSubmitTotalFailure(t *testing.T) {
	tests := []struct {
		name        string
		primaryErr  error
		fallbackErr error
		want        Category
	}{
		{
			name:        "duplicate email",
			primaryErr:  &datastore.APIError{StatusCode: 409, Code: datastore.CodeUniqueViolation, Message: "duplicate key value"},
			fallbackErr: errors.New("relay: HTTP 500"),
			want:        CategoryDuplicate,
		},
		{
			name:        "missing table",
			primaryErr:  &datastore.APIError{StatusCode: 404, Code: datastore.CodeUndefinedTable},
			fallbackErr: errors.New("relay: HTTP 502"),
			want:        CategoryConfig,
		},
		{
			name:        "network down",
			primaryErr:  context.DeadlineExceeded,
			fallbackErr: errors.New("relay: http error: dial tcp: connection refused"),
			want:        CategoryConnection,
		},
		{
			name:        "unknown",
			primaryErr:  errors.New("boom"),
			fallbackErr: errors.New("bang"),
			want:        CategoryGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.primary.err = tt.primaryErr
			f.fallback.err = tt.fallbackErr

			res := f.service(t).Submit(context.Background(), anaForm())
			assert.False(t, res.Success)
			assert.Equal(t, MethodNone, res.Method)
			assert.Equal(t, tt.want, res.Category)
			assert.Equal(t, failureMessage(tt.want, f.cfg.Contact), res.Message)
			assert.Contains(t, res.Message, "(11) 4000-1234")
			assert.NotContains(t, res.Message, tt.fallbackErr.Error())
			assert.Contains(t, res.RawError, tt.primaryErr.Error())
			assert.Contains(t, res.RawError, tt.fallbackErr.Error())
			assert.Empty(t, f.journal.entries)
		})
	}
}

func TestSubmitCustomMessages(t *testing.T) {
	f := newFixture()
	svc := f.service(t)

	res := svc.Submit(context.Background(), anaForm(), WithSuccessMessage("Valeu!"))
	assert.Equal(t, "Valeu!", res.Message)

	f.primary.err = errors.New("x")
	f.fallback.err = errors.New("y")
	form := anaForm()
	form.Email = "outra@example.com"
	res = svc.Submit(context.Background(), form, WithErrorMessage("Ops, ligue pra gente."))
	assert.Equal(t, "Ops, ligue pra gente.", res.Message)
	assert.Equal(t, CategoryGeneric, res.Category)
}

func TestSubmitRecordsMetrics(t *testing.T) {
	f := newFixture()
	svc := f.service(t)
	svc.Submit(context.Background(), anaForm())
	svc.Submit(context.Background(), leads.RawFormInput{})

	assert.Equal(t, 2, seriesCount(t, f.registry, "leads_submission_total"))
	assert.Equal(t, 1, seriesCount(t, f.registry, "leads_delivery_attempts_total"))
}

func TestNewServiceRequiresDeliverers(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)
	_, err = NewService(Config{Primary: &stubDeliverer{}, Fallback: &stubDeliverer{}})
	assert.Error(t, err, "limiter is required")
}

func TestConnectivity(t *testing.T) {
	f := newFixture()
	prober := &probingDeliverer{stubDeliverer: stubDeliverer{name: "datastore"}}
	f.cfg.Primary = prober

	report := f.service(t).TestConnectivity(context.Background())
	assert.True(t, report.Reachable)
	assert.Equal(t, "datastore", report.Adapter)
	assert.Equal(t, 0, prober.calls(), "probe must not insert")

	prober.probeErr = &datastore.APIError{StatusCode: 401, Message: "Invalid API key"}
	report = f.service(t).TestConnectivity(context.Background())
	assert.False(t, report.Reachable)
	assert.Equal(t, CategoryConfig, report.Category)
	assert.Contains(t, report.Error, "Invalid API key")
}

func TestConnectivityWithoutProber(t *testing.T) {
	report := newFixture().service(t).TestConnectivity(context.Background())
	assert.False(t, report.Reachable)
	assert.Equal(t, CategoryConfig, report.Category)
}

func TestReplayTreatsDuplicateAsDone(t *testing.T) {
	f := newFixture()
	svc := f.service(t)
	rec := leads.LeadRecord{Name: "Ana", Email: "ana@example.com", Phone: "11988887777", Operator: "amil", Status: leads.StatusNew, Priority: 3}

	assert.NoError(t, svc.Replay(context.Background(), rec))

	f.primary.err = &datastore.APIError{StatusCode: 409, Code: datastore.CodeUniqueViolation}
	assert.NoError(t, svc.Replay(context.Background(), rec))

	f.primary.err = errors.New("still down")
	assert.Error(t, svc.Replay(context.Background(), rec))
	assert.Equal(t, 0, f.fallback.calls())
}
