package uow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Commit results recorded by Metrics.
const (
	resultCommitted  = "committed"
	resultRejected   = "rejected"    // pre-flight check failed, storage untouched
	resultRolledBack = "rolled_back" // statement or hook failed
	resultFailed     = "failed"      // begin or commit failed
)

// Metrics holds the Prometheus collectors of a unit of work. A nil *Metrics
// records nothing.
type Metrics struct {
	Scheduled  *prometheus.CounterVec
	Statements *prometheus.CounterVec
	Commits    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg, if not nil.
// One Metrics may be shared by many units of work.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "uow",
			Name:      "scheduled_total",
			Help:      "Records scheduled by operation.",
		}, []string{"op"}),
		Statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "uow",
			Name:      "statements_total",
			Help:      "Statements issued to storage by kind.",
		}, []string{"op"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "uow",
			Name:      "commits_total",
			Help:      "Commit attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Scheduled, m.Statements, m.Commits)
	}
	return m
}

func (m *Metrics) scheduled(op Op) {
	if m != nil {
		m.Scheduled.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) statement(k Kind) {
	if m != nil {
		m.Statements.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) commit(result string) {
	if m != nil {
		m.Commits.WithLabelValues(result).Inc()
	}
}
