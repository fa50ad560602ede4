package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
}

func (w *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.mu.Lock()
		w.payloads = append(w.payloads, p)
		w.mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	}
}

func (w *webhookRecorder) all() []WebhookPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WebhookPayload(nil), w.payloads...)
}

func newTestAlerter(t *testing.T) (*LinkAlerter, *webhookRecorder, *time.Time) {
	t.Helper()
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	a := NewLinkAlerter(WebhookConfig{
		URL:          srv.URL,
		Site:         "plant-1",
		StoreDelay:   30 * time.Second,
		HistoryDelay: 5 * time.Second,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a, rec, &now
}

func TestLinkAlerterWaitsForDelay(t *testing.T) {
	a, rec, now := newTestAlerter(t)

	a.Check(LinkStore, false)
	*now = now.Add(10 * time.Second)
	a.Check(LinkStore, false)
	a.Wait()
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no alert before delay, got %d", n)
	}

	*now = now.Add(25 * time.Second)
	a.Check(LinkStore, false)
	a.Check(LinkStore, false)
	a.Wait()

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(got))
	}
	if got[0].Event != LinkStore || got[0].Severity != SeverityWarning || got[0].Site != "plant-1" {
		t.Errorf("unexpected payload %+v", got[0])
	}
	if secs, _ := got[0].Details["disconnected_seconds"].(float64); secs != 35 {
		t.Errorf("disconnected_seconds = %v, want 35", got[0].Details["disconnected_seconds"])
	}
}

func TestLinkAlerterSendsRecovery(t *testing.T) {
	a, rec, now := newTestAlerter(t)

	a.Check(LinkHistory, false)
	*now = now.Add(6 * time.Second)
	a.Check(LinkHistory, false)
	a.Check(LinkHistory, true)
	a.Wait()

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected alert and recovery, got %d", len(got))
	}
	// Posts run concurrently, so arrival order is not fixed.
	seen := map[string]bool{}
	for _, p := range got {
		seen[p.Severity] = true
	}
	if !seen[SeverityCritical] || !seen[SeverityInfo] {
		t.Errorf("expected critical alert and info recovery, got %+v", got)
	}
}

func TestLinkAlerterShortOutageIsQuiet(t *testing.T) {
	a, rec, now := newTestAlerter(t)

	a.Check(LinkHistory, false)
	*now = now.Add(time.Second)
	a.Check(LinkHistory, true)
	a.Check(LinkStore, true)
	a.Check("unknown", false)
	a.Wait()

	if n := len(rec.all()); n != 0 {
		t.Errorf("expected no alerts, got %d", n)
	}
}

func TestWebhookFromEnv(t *testing.T) {
	t.Setenv("WATERMON_ALERT_WEBHOOK_URL", "http://hooks.local/x")
	t.Setenv("WATERMON_STORE_ALERT_DELAY", "1m")
	t.Setenv("WATERMON_HISTORY_ALERT_DELAY", "bogus")

	cfg := WebhookFromEnv("plant-1")
	if cfg.URL != "http://hooks.local/x" || cfg.Site != "plant-1" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.StoreDelay != time.Minute {
		t.Errorf("StoreDelay = %v, want 1m", cfg.StoreDelay)
	}
	if cfg.HistoryDelay != 5*time.Second {
		t.Errorf("HistoryDelay = %v, want default 5s", cfg.HistoryDelay)
	}
}
