// Package metrics registers the Prometheus collectors a peer process
// exposes for its CRDT, ACL, and sync subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors a peer process registers. No code in this
// module increments or observes them; `sync serve` only exposes the
// registry they are registered with. The zero value is not ready for use;
// call New.
type Metrics struct {
	DocsApplied       prometheus.Counter
	DocsJoined        prometheus.Counter
	ApplyLatency      prometheus.Histogram
	ACLChecksTotal    *prometheus.CounterVec
	MigrationsApplied prometheus.Counter
	SyncFramesSent    prometheus.Counter
	SyncFramesRecv    prometheus.Counter
	SyncPushDropped   prometheus.Counter
}

// New constructs a Metrics bound to reg, registering every collector.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_docs_applied_total",
			Help: "Number of causals applied to a local document, from either a cursor mutation or an incoming join.",
		}),
		DocsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_docs_joined_total",
			Help: "Number of causals applied specifically via Document.Join (a remote origin).",
		}),
		ApplyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ldb_apply_latency_seconds",
			Help:    "Time spent applying one causal, including the storage transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		ACLChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldb_acl_checks_total",
			Help: "Number of Engine.Can evaluations, partitioned by outcome.",
		}, []string{"outcome"}),
		MigrationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_migrations_applied_total",
			Help: "Number of Document.Transform calls that completed successfully.",
		}),
		SyncFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_sync_frames_sent_total",
			Help: "Number of sealed gossip frames sent to a remote peer.",
		}),
		SyncFramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_sync_frames_received_total",
			Help: "Number of sealed gossip frames received from a remote peer.",
		}),
		SyncPushDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldb_sync_push_dropped_total",
			Help: "Number of Session.Push calls dropped because the outbox was full.",
		}),
	}
	reg.MustRegister(
		m.DocsApplied, m.DocsJoined, m.ApplyLatency, m.ACLChecksTotal,
		m.MigrationsApplied, m.SyncFramesSent, m.SyncFramesRecv, m.SyncPushDropped,
	)
	return m
}

// ObserveCheck records the outcome of an ACL check (outcome is "allow" or
// "deny").
func (m *Metrics) ObserveCheck(allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.ACLChecksTotal.WithLabelValues(outcome).Inc()
}
