package alerts

import (
	"time"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/network"
)

// SystemView is the processed, display-ready state sent to dashboards.
// Valves, taps, and leaks are keyed by display name.
type SystemView struct {
	Valves               map[string]bool    `json:"valves"`
	Taps                 map[string]bool    `json:"taps"`
	Leaks                map[string]string  `json:"leaks"`
	Sensors              map[string]float64 `json:"sensors"`
	WaterLevel           int                `json:"water_level"`
	ActiveAlerts         []Alert            `json:"active_alerts"`
	UnacknowledgedAlerts int                `json:"unacknowledged_alerts"`
	Timestamp            string             `json:"timestamp"`
}

// View builds the processed view of the last evaluated snapshot, with the
// active alerts p may see.
func (m *Manager) View(p access.Principal) SystemView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked(p)
}

func (m *Manager) viewLocked(p access.Principal) SystemView {
	snap := m.last
	v := SystemView{
		Valves:       make(map[string]bool, len(snap.Valves)),
		Taps:         make(map[string]bool, len(snap.Taps)),
		Leaks:        make(map[string]string),
		Sensors:      make(map[string]float64, len(snap.Sensors)),
		WaterLevel:   snap.WaterLevel,
		ActiveAlerts: m.activeLocked(p),
		Timestamp:    snap.Timestamp,
	}
	for id, open := range snap.Valves {
		v.Valves[network.ValveName(id)] = open
	}
	for id, open := range snap.Taps {
		v.Taps[network.TapName(id)] = open
	}
	for id, active := range snap.ActiveLeaks {
		if active {
			v.Leaks[network.PipeName(id)] = "ACTIVE"
		}
	}
	for k, val := range snap.Sensors {
		v.Sensors[k] = val
	}
	for _, a := range v.ActiveAlerts {
		if !a.Acknowledged {
			v.UnacknowledgedAlerts++
		}
	}
	if v.Timestamp == "" {
		v.Timestamp = m.now().Format(time.RFC3339)
	}
	return v
}
