package metrics

import "time"

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// AuthFailed counts a rejected credential or missing session.
func (r *Registry) AuthFailed() {
	if r == nil {
		return
	}
	r.AuthFailuresTotal.Inc()
}

// SetSubscribers records the current live subscriber count.
func (r *Registry) SetSubscribers(n int) {
	if r == nil {
		return
	}
	r.StreamSubscribers.Set(float64(n))
}

// SubscriberEvicted counts a slow subscriber dropped by the hub.
func (r *Registry) SubscriberEvicted() {
	if r == nil {
		return
	}
	r.StreamEvictionsTotal.Inc()
}

// MessageBroadcast counts one broadcast message by type.
func (r *Registry) MessageBroadcast(msgType string) {
	if r == nil {
		return
	}
	r.StreamMessagesTotal.WithLabelValues(msgType).Inc()
}

// SetActiveAlerts records the active alert count for a kind.
func (r *Registry) SetActiveAlerts(kind string, n int) {
	if r == nil {
		return
	}
	r.AlertsActive.WithLabelValues(kind).Set(float64(n))
}

// AlertTransition counts one lifecycle transition.
func (r *Registry) AlertTransition(kind, transition string) {
	if r == nil {
		return
	}
	r.AlertTransitionsTotal.WithLabelValues(kind, transition).Inc()
}

// SetMechanicLoads records the load of every mechanic.
func (r *Registry) SetMechanicLoads(loads map[string]int) {
	if r == nil {
		return
	}
	for id, n := range loads {
		r.MechanicLoad.WithLabelValues(id).Set(float64(n))
	}
}

// HistorySinkFailed counts a failed history write.
func (r *Registry) HistorySinkFailed() {
	if r == nil {
		return
	}
	r.HistorySinkFailures.Inc()
}

// PollFinished records one monitor iteration. result is "ok", "error",
// or "panic".
func (r *Registry) PollFinished(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.MonitorPollsTotal.WithLabelValues(result).Inc()
	r.MonitorPollDuration.Observe(duration.Seconds())
}

// SetStoreConnected records shared store reachability.
func (r *Registry) SetStoreConnected(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.StoreConnected.Set(1)
	} else {
		r.StoreConnected.Set(0)
	}
}
