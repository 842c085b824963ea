package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's prometheus collectors. A nil *Metrics is
// a valid no-op receiver so tests can run without a registry.
type Metrics struct {
	tokensIssued  prometheus.Counter
	actions       *prometheus.CounterVec
	accessDenied  prometheus.Counter
	activeTokens  prometheus.GaugeFunc
	receiptsSaved prometheus.Counter
}

// NewMetrics registers the engine collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer, tokens *tokenStore) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_tokens_issued_total",
			Help: "Session tokens issued to machines.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kioskd_actions_total",
			Help: "User actions processed, by action name.",
		}, []string{"action"}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_access_denied_total",
			Help: "Messages rejected for a missing, foreign, or expired token.",
		}),
		receiptsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_receipts_archived_total",
			Help: "Receipts rendered and archived.",
		}),
	}
	m.activeTokens = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kioskd_active_tokens",
		Help: "Unexpired session tokens currently tracked.",
	}, func() float64 {
		tokens.mu.Lock()
		defer tokens.mu.Unlock()
		return float64(len(tokens.tokens))
	})

	reg.MustRegister(m.tokensIssued, m.actions, m.accessDenied, m.receiptsSaved, m.activeTokens)
	return m
}

func (m *Metrics) tokenIssued() {
	if m != nil {
		m.tokensIssued.Inc()
	}
}

func (m *Metrics) actionProcessed(name string) {
	if m != nil {
		m.actions.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) denied() {
	if m != nil {
		m.accessDenied.Inc()
	}
}

func (m *Metrics) receiptArchived() {
	if m != nil {
		m.receiptsSaved.Inc()
	}
}
