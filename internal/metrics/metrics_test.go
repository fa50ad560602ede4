package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	r.AuthFailed()
	r.SetSubscribers(3)
	r.SubscriberEvicted()
	r.MessageBroadcast("ping")
	r.SetActiveAlerts("leak", 1)
	r.AlertTransition("leak", "created")
	r.SetMechanicLoads(map[string]int{"M001": 1})
	r.HistorySinkFailed()
	r.PollFinished("ok", time.Millisecond)
	r.SetStoreConnected(true)
}

func TestRecording(t *testing.T) {
	r := NewRegistry("test")

	r.SubscriberEvicted()
	r.SubscriberEvicted()
	if got := testutil.ToFloat64(r.StreamEvictionsTotal); got != 2 {
		t.Errorf("expected 2 evictions, got %v", got)
	}

	r.SetActiveAlerts("leak", 3)
	if got := testutil.ToFloat64(r.AlertsActive.WithLabelValues("leak")); got != 3 {
		t.Errorf("expected 3 active leak alerts, got %v", got)
	}

	r.SetMechanicLoads(map[string]int{"M001": 2, "M002": 0})
	if got := testutil.ToFloat64(r.MechanicLoad.WithLabelValues("M001")); got != 2 {
		t.Errorf("expected M001 load 2, got %v", got)
	}

	r.SetStoreConnected(false)
	if got := testutil.ToFloat64(r.StoreConnected); got != 0 {
		t.Errorf("expected store disconnected, got %v", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	r := NewRegistry("1.2.3")
	r.PollFinished("ok", 5*time.Millisecond)
	r.MessageBroadcast("system_update")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`watermon_build_info{version="1.2.3"} 1`,
		`watermon_monitor_polls_total{result="ok"} 1`,
		`watermon_stream_messages_total{type="system_update"} 1`,
		"watermon_uptime_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
