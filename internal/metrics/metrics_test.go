package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAction(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordAction("getStyle", "success", 0.5)
	m.RecordAction("getStyle", "success", 1.2)
	m.RecordAction("getStyle", "error", 0.1)

	success := testutil.ToFloat64(m.ActionInvocationsTotal.WithLabelValues("getStyle", "success"))
	if success != 2 {
		t.Errorf("expected 2 successful invocations, got %v", success)
	}
	failed := testutil.ToFloat64(m.ActionInvocationsTotal.WithLabelValues("getStyle", "error"))
	if failed != 1 {
		t.Errorf("expected 1 failed invocation, got %v", failed)
	}
}

func TestSessionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionsEvicted(3)
	m.RecordSessionsEvicted(0) // no-op
	m.SetActiveSessions(5)

	if got := testutil.ToFloat64(m.SessionsCreated); got != 2 {
		t.Errorf("expected 2 created sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsEvicted); got != 3 {
		t.Errorf("expected 3 evicted sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 5 {
		t.Errorf("expected 5 active sessions, got %v", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// All recorders must tolerate a nil receiver so call sites can skip
	// wiring metrics in tests.
	m.RecordWebhook("text", "success", 0.1)
	m.RecordAction("say", "success", 0.1)
	m.RecordConverseStep("msg")
	m.RecordTurn(1)
	m.RecordSend("success")
	m.RecordUpstream("brewery", "success", 0.1)
	m.SetActiveSessions(1)
	m.RecordSessionCreated()
	m.RecordSessionsEvicted(1)
	m.RecordRateLimiterDrop("send")
}

func TestRecordUpstream(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordUpstream("untappd", "success", 0.2)
	m.RecordUpstream("untappd", "error", 0.1)

	if got := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("untappd", "success")); got != 1 {
		t.Errorf("expected 1 successful upstream call, got %v", got)
	}
}
