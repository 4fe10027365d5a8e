package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeadMetrics exposes counters/histograms for the lead submission pipeline.
type LeadMetrics struct {
	submissionsTotal *prometheus.CounterVec
	deliveryTotal    *prometheus.CounterVec
	deliveryLatency  *prometheus.HistogramVec
	rateLimitedTotal prometheus.Counter
	journalTotal     *prometheus.CounterVec
	ipLookupTotal    *prometheus.CounterVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "submission",
			Name:      "total",
			Help:      "Lead submissions by outcome, winning method and error category",
		}, []string{"outcome", "method", "category"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts per adapter",
		}, []string{"adapter", "status"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leads",
			Subsystem: "delivery",
			Name:      "latency_seconds",
			Help:      "Latency of a single delivery attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "submission",
			Name:      "rate_limited_total",
			Help:      "Submissions refused by the per-email limiter",
		}),
		journalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Journal writes for fallback deliveries",
		}, []string{"status"}),
		ipLookupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "enrichment",
			Name:      "ip_lookup_total",
			Help:      "Client IP lookups by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.deliveryTotal, m.deliveryLatency, m.rateLimitedTotal, m.journalTotal, m.ipLookupTotal)
	return m
}

// ObserveSubmission counts a finished submission. method is "primary",
// "fallback" or empty; category is empty on success.
func (m *LeadMetrics) ObserveSubmission(success bool, method, category string) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	if method == "" {
		method = "none"
	}
	if category == "" {
		category = "none"
	}
	m.submissionsTotal.WithLabelValues(outcome, method, category).Inc()
}

func (m *LeadMetrics) ObserveDelivery(adapter string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.deliveryTotal.WithLabelValues(adapter, status).Inc()
	m.deliveryLatency.WithLabelValues(adapter).Observe(seconds)
}

func (m *LeadMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

func (m *LeadMetrics) ObserveJournal(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.journalTotal.WithLabelValues(status).Inc()
}

// ObserveIPLookup records an IP echo lookup: "ok", "error" or "skipped"
// when the caller's address was already known.
func (m *LeadMetrics) ObserveIPLookup(status string) {
	if m == nil {
		return
	}
	m.ipLookupTotal.WithLabelValues(status).Inc()
}
