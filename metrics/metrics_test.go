package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterCoreMetrics(t *testing.T) {
	reg := NewRegistry()
	RegisterCoreMetrics(reg)

	RequestCounter.Inc()
	QueueDepthGauge.Set(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	want := map[string]bool{
		"lamport_requests_total":        false,
		"lamport_grants_total":          false,
		"lamport_releases_total":        false,
		"lamport_acks_sent_total":       false,
		"lamport_acks_observed_total":   false,
		"lamport_send_failures_total":   false,
		"lamport_malformed_lines_total": false,
		"lamport_queue_depth":           false,
		"lamport_agent_state":           false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}

	if got := testutil.ToFloat64(QueueDepthGauge); got != 2 {
		t.Fatalf("queue depth gauge = %v, want 2", got)
	}
}

func TestRegisterCoreMetricsTwiceOnSeparateRegistries(t *testing.T) {
	RegisterCoreMetrics(NewRegistry())
	RegisterCoreMetrics(NewRegistry())
}
