package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Webhook severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Watched links
const (
	LinkStore   = "store_disconnected"
	LinkHistory = "history_unavailable"
)

// WebhookPayload is the JSON structure sent to the webhook.
type WebhookPayload struct {
	Site      string         `json:"site"`
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WebhookConfig configures link alerting.
type WebhookConfig struct {
	URL  string
	Site string
	// StoreDelay is how long the store link must be down before alerting.
	StoreDelay time.Duration
	// HistoryDelay is how long the history database must be down before alerting.
	HistoryDelay time.Duration
}

// WebhookFromEnv reads WATERMON_ALERT_WEBHOOK_URL and the optional
// WATERMON_STORE_ALERT_DELAY and WATERMON_HISTORY_ALERT_DELAY durations.
func WebhookFromEnv(site string) WebhookConfig {
	cfg := WebhookConfig{
		URL:          os.Getenv("WATERMON_ALERT_WEBHOOK_URL"),
		Site:         site,
		StoreDelay:   30 * time.Second,
		HistoryDelay: 5 * time.Second,
	}
	if v := os.Getenv("WATERMON_STORE_ALERT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StoreDelay = d
		}
	}
	if v := os.Getenv("WATERMON_HISTORY_ALERT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HistoryDelay = d
		}
	}
	return cfg
}

type linkState struct {
	up       bool
	downAt   time.Time
	alerted  bool
	delay    time.Duration
	severity string
	message  string
}

// LinkAlerter posts to a webhook when a dependency stays down past its
// delay, and again when it recovers. Without a URL alerts are logged.
type LinkAlerter struct {
	mu     sync.Mutex
	cfg    WebhookConfig
	client *http.Client
	links  map[string]*linkState
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewLinkAlerter creates an alerter. Every link starts as up.
func NewLinkAlerter(cfg WebhookConfig) *LinkAlerter {
	if cfg.Site == "" {
		cfg.Site = "unknown"
	}
	return &LinkAlerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		links: map[string]*linkState{
			LinkStore:   {up: true, delay: cfg.StoreDelay, severity: SeverityWarning, message: "Store broker disconnected"},
			LinkHistory: {up: true, delay: cfg.HistoryDelay, severity: SeverityCritical, message: "History database unavailable"},
		},
		now: time.Now,
	}
}

// Check records the state of a link and sends an alert if it has been
// down for longer than its delay, or a recovery notice once it is back.
func (a *LinkAlerter) Check(link string, up bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.links[link]
	if !ok {
		return
	}
	now := a.now()

	if up {
		if !st.up && st.alerted {
			a.sendLocked(link, SeverityInfo, st.message+": restored", map[string]any{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		st.up = true
		st.downAt = time.Time{}
		st.alerted = false
		return
	}

	if st.up {
		st.downAt = now
	}
	st.up = false

	if !st.alerted && now.Sub(st.downAt) >= st.delay {
		st.alerted = true
		a.sendLocked(link, st.severity, st.message, map[string]any{
			"disconnected_since":   st.downAt.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(now.Sub(st.downAt).Seconds()),
		})
	}
}

// Send posts an alert (best-effort, non-blocking).
func (a *LinkAlerter) Send(event, severity, message string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendLocked(event, severity, message, details)
}

func (a *LinkAlerter) sendLocked(event, severity, message string, details map[string]any) {
	if a.cfg.URL == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}
	payload := WebhookPayload{
		Site:      a.cfg.Site,
		Event:     event,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.post(payload)
	}()
}

func (a *LinkAlerter) post(payload WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook: failed to marshal payload: %v", err)
		return
	}
	resp, err := a.client.Post(a.cfg.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: POST failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("webhook: returned status %d", resp.StatusCode)
	}
}

// Probe reports whether a link is up.
type Probe func(ctx context.Context) bool

// Watch runs the probes every interval until ctx is cancelled.
func (a *LinkAlerter) Watch(ctx context.Context, interval time.Duration, probes map[string]Probe) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for link, probe := range probes {
				a.Check(link, probe(ctx))
			}
		}
	}
}

// Wait blocks until in-flight webhook posts finish.
func (a *LinkAlerter) Wait() {
	a.wg.Wait()
}
