package access

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes recorded by Metrics.
const (
	outcomeAdmin    = "admin"
	outcomeGroups   = "groups"
	outcomeNoGroups = "no_groups"
	outcomeDenied   = "denied"
	outcomeError    = "error"
)

// Metrics exposes Prometheus collectors for permission resolution.
type Metrics struct {
	resolutions *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	quotaDenied *prometheus.CounterVec
}

// NewMetrics registers the access collectors against the registerer. A nil registerer
// yields unregistered collectors, which is what tests want.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_access_resolutions_total",
			Help: "Permission resolutions computed from the store, by outcome.",
		}, []string{"outcome"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_access_cache_lookups_total",
			Help: "Permission cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_access_quota_denied_total",
			Help: "Transfers refused by the daily quota, by kind.",
		}, []string{"kind"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.resolutions, m.lookups, m.quotaDenied)
	}
	return m
}

func (m *Metrics) resolved(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) lookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) quotaRefused(kind QuotaKind) {
	if m == nil {
		return
	}
	m.quotaDenied.WithLabelValues(string(kind)).Inc()
}
