package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/watermon/internal/alerts"
	"github.com/AaronLay10/watermon/internal/config"
	"github.com/AaronLay10/watermon/internal/events"
	"github.com/AaronLay10/watermon/internal/metrics"
	"github.com/AaronLay10/watermon/internal/version"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

var errInvalidJSON = errors.New("invalid JSON")

// ReadinessChecker reports whether the dashboard is serving fresh data.
// alerts.Monitor implements it.
type ReadinessChecker interface {
	Healthy() bool
}

// Options wires a Server. Manager, Hub, and Auth are required.
type Options struct {
	Manager   *alerts.Manager
	Hub       *events.Hub
	Auth      *Authenticator
	Metrics   *metrics.Registry
	Ready     ReadinessChecker
	Keepalive time.Duration
	DevMode   bool
	// SecureCookies marks the session cookie Secure (set when serving TLS).
	SecureCookies bool
}

// Server is the dashboard HTTP surface.
type Server struct {
	manager   *alerts.Manager
	hub       *events.Hub
	auth      *Authenticator
	metrics   *metrics.Registry
	ready     ReadinessChecker
	keepalive time.Duration
	devMode   bool
	secure    bool
}

// NewServer creates a server.
func NewServer(o Options) *Server {
	keepalive := o.Keepalive
	if keepalive <= 0 {
		keepalive = events.DefaultKeepalive
	}
	return &Server{
		manager:   o.Manager,
		hub:       o.Hub,
		auth:      o.Auth,
		metrics:   o.Metrics,
		ready:     o.Ready,
		keepalive: keepalive,
		devMode:   o.DevMode,
		secure:    o.SecureCookies,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/login", s.loginHandler)
	mux.HandleFunc("/logout", s.logoutHandler)

	mux.HandleFunc("/api/system-data", s.RequireAny(get(s.systemDataHandler)))
	mux.HandleFunc("/api/alerts", s.RequireAny(get(s.alertsHandler)))
	mux.HandleFunc("/api/alerts/acknowledge", s.RequireAny(post(s.acknowledgeHandler)))
	mux.HandleFunc("/api/alerts/history", s.RequireAny(get(s.historyHandler)))
	mux.HandleFunc("/api/alerts/resolve-all", s.RequireAdmin(post(s.resolveAllHandler)))
	mux.HandleFunc("/api/mechanics", s.RequireAdmin(get(s.mechanicsHandler)))
	mux.HandleFunc("/api/assign-leak", s.RequireAdmin(post(s.assignLeakHandler)))
	mux.HandleFunc("/api/simulate-leak", s.RequireAdmin(post(s.simulateLeakHandler)))
	mux.HandleFunc("/api/events", s.RequireAdmin(get(s.recentEventsHandler)))

	mux.HandleFunc("/ws", s.RequireAny(s.wsHandler))
	mux.HandleFunc("/stream", s.RequireAny(s.sseHandler))

	return s.instrument(mux)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully. TLS is used when tlsCfg is non-nil.
func (s *Server) ListenAndServe(ctx context.Context, port int, tlsCfg *TLSConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			c, err := tlsCfg.Load()
			if err != nil {
				errCh <- err
				return
			}
			srv.TLSConfig = c
			log.Printf("api: listening on %s (TLS)", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("api: listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Streams end when the hub closes their subscribers.
	s.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Response is the envelope for command results and errors.
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{OK: false, Error: msg})
}

// writeManagerError maps manager errors to HTTP statuses.
func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerts.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, alerts.ErrNotFound), errors.Is(err, alerts.ErrUnknownMechanic), errors.Is(err, alerts.ErrUnknownPipe):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alerts.ErrNotLeak):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errInvalidJSON
	}
	return config.Validate(v)
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, h)
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, h)
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "dashboard",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type ReadyResponse struct {
	Ready       bool `json:"ready"`
	Subscribers int  `json:"subscribers"`
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.ready == nil || s.ready.Healthy()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ReadyResponse{Ready: ready, Subscribers: s.hub.SubscriberCount()})
}

func (s *Server) systemDataHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, s.manager.View(p))
}

type AlertsResponse struct {
	ActiveAlerts        []alerts.Alert `json:"active_alerts"`
	UnacknowledgedCount int            `json:"unacknowledged_count"`
	TotalActive         int            `json:"total_active"`
	Timestamp           string         `json:"timestamp"`
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	active := s.manager.Active(p)
	resp := AlertsResponse{
		ActiveAlerts: active,
		TotalActive:  len(active),
		Timestamp:    time.Now().Format(time.RFC3339),
	}
	for _, a := range active {
		if !a.Acknowledged {
			resp.UnacknowledgedCount++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type AcknowledgeRequest struct {
	AlertID string `json:"alert_id" validate:"required"`
}

type AcknowledgeResponse struct {
	Response
	Alert alerts.Alert `json:"alert"`
}

func (s *Server) acknowledgeHandler(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := PrincipalFrom(r.Context())
	a, err := s.manager.Acknowledge(p, req.AlertID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AcknowledgeResponse{
		Response: Response{OK: true, Message: "Alert acknowledged"},
		Alert:    a,
	})
}

type HistoryResponse struct {
	History    []alerts.HistoryEntry `json:"history"`
	TotalCount int                   `json:"total_count"`
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := alerts.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	p, _ := PrincipalFrom(r.Context())
	hist, total := s.manager.History(p, limit)
	if hist == nil {
		hist = []alerts.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: hist, TotalCount: total})
}

type EventsResponse struct {
	Events []events.Message `json:"events"`
	Total  uint64           `json:"total"`
}

// recentEventsHandler returns the latest broadcasts, newest last.
func (s *Server) recentEventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: s.hub.Recent(limit), Total: s.hub.TotalCount()})
}

type ResolveAllResponse struct {
	Response
	Resolved int `json:"resolved"`
}

func (s *Server) resolveAllHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	n, err := s.manager.ResolveAll(p)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveAllResponse{
		Response: Response{OK: true, Message: fmt.Sprintf("Resolved %d alerts", n)},
		Resolved: n,
	})
}

type MechanicsResponse struct {
	Mechanics          []alerts.MechanicSummary `json:"mechanics"`
	TotalMechanics     int                      `json:"total_mechanics"`
	TotalAssignedLeaks int                      `json:"total_assigned_leaks"`
}

func (s *Server) mechanicsHandler(w http.ResponseWriter, r *http.Request) {
	list := s.manager.Mechanics()
	resp := MechanicsResponse{Mechanics: list, TotalMechanics: len(list)}
	for _, m := range list {
		resp.TotalAssignedLeaks += m.AssignedLeaksCount
	}
	writeJSON(w, http.StatusOK, resp)
}

type AssignRequest struct {
	LeakID     string `json:"leak_id" validate:"required"`
	MechanicID string `json:"mechanic_id" validate:"required"`
}

type AssignResponse struct {
	Response
	alerts.Reassignment
}

func (s *Server) assignLeakHandler(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := s.manager.Assign(p, req.LeakID, req.MechanicID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{
		Response:     Response{OK: true, Message: "Leak reassigned to " + res.Alert.AssignedMechanicName},
		Reassignment: res,
	})
}

type SimulateRequest struct {
	PipeID string `json:"pipe_id"`
	Active *bool  `json:"active"`
}

type SimulateResponse struct {
	Response
	Alert alerts.Alert `json:"alert"`
}

func (s *Server) simulateLeakHandler(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		writeError(w, http.StatusForbidden, "not allowed in production")
		return
	}
	var req SimulateRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.PipeID == "" {
		req.PipeID = "TANK-S1"
	}
	active := req.Active == nil || *req.Active

	p, _ := PrincipalFrom(r.Context())
	a, err := s.manager.Simulate(p, req.PipeID, active)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	msg := "Simulated leak created for " + a.PipeName
	if !active {
		msg = "Simulated leak resolved for " + a.PipeName
	}
	writeJSON(w, http.StatusOK, SimulateResponse{
		Response: Response{OK: true, Message: msg},
		Alert:    a,
	})
}
