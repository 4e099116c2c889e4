package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DocsApplied.Inc()
	m.SyncFramesSent.Inc()
	m.SyncFramesSent.Inc()

	if got := counterValue(t, m.DocsApplied); got != 1 {
		t.Fatalf("expected DocsApplied to be 1, got %v", got)
	}
	if got := counterValue(t, m.SyncFramesSent); got != 2 {
		t.Fatalf("expected SyncFramesSent to be 2, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestObserveCheckLabelsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCheck(true)
	m.ObserveCheck(false)
	m.ObserveCheck(false)

	if got := m.ACLChecksTotal.WithLabelValues("allow").(prometheus.Counter); counterValue(t, got) != 1 {
		t.Fatalf("expected one allow outcome, got %v", counterValue(t, got))
	}
	if got := m.ACLChecksTotal.WithLabelValues("deny").(prometheus.Counter); counterValue(t, got) != 2 {
		t.Fatalf("expected two deny outcomes, got %v", counterValue(t, got))
	}
}

func TestResetGlobalAvoidsDuplicateRegistration(t *testing.T) {
	ResetGlobal()
	ResetGlobal()
	if Global == nil {
		t.Fatal("expected ResetGlobal to leave Global non-nil")
	}
}
