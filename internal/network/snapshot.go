package network

import "time"

// SegmentState is the derived state of one segment.
type SegmentState struct {
	HasLeak      bool `json:"has_leak"`
	HasFlow      bool `json:"has_flow"`
	IsActiveLeak bool `json:"is_active_leak"`
}

// FlowSnapshot is a consistent, read-only view of the network after a
// recomputation. Maps are owned by the snapshot; callers must not mutate
// them.
type FlowSnapshot struct {
	Valves     map[ValveID]bool           `json:"valves"`
	Taps       map[NodeID]bool            `json:"taps"`
	Segments   map[SegmentID]SegmentState `json:"segments"`
	Order      []SegmentID                `json:"order"`
	WaterLevel int                        `json:"water_level"`
	Sensors    map[string]float64         `json:"sensors"`
	Timestamp  time.Time                  `json:"ts"`
}

// Supplied reports whether the tank is feeding the network.
func (s FlowSnapshot) Supplied() bool {
	return s.Valves[TankValve] && s.WaterLevel > 0
}

// ActiveLeaks returns leaking segments that currently carry water.
func (s FlowSnapshot) ActiveLeaks() []SegmentID {
	var out []SegmentID
	for _, id := range s.Order {
		if s.Segments[id].IsActiveLeak {
			out = append(out, id)
		}
	}
	return out
}

// InactiveLeaks returns leaking segments that are dry.
func (s FlowSnapshot) InactiveLeaks() []SegmentID {
	var out []SegmentID
	for _, id := range s.Order {
		st := s.Segments[id]
		if st.HasLeak && !st.HasFlow {
			out = append(out, id)
		}
	}
	return out
}

// LeakReport summarizes leaks by activity.
type LeakReport struct {
	Timestamp         string   `json:"timestamp"`
	TotalPipes        int      `json:"total_pipes"`
	TotalLeaks        int      `json:"total_leaks"`
	ActiveLeaks       []string `json:"active_leaks"`
	ActiveLeakCount   int      `json:"active_leak_count"`
	InactiveLeaks     []string `json:"inactive_leaks"`
	InactiveLeakCount int      `json:"inactive_leak_count"`
}

// LeakReport builds the leak summary for this snapshot.
func (s FlowSnapshot) LeakReport() LeakReport {
	r := LeakReport{
		Timestamp:     s.Timestamp.Format(time.RFC3339),
		TotalPipes:    len(s.Order),
		ActiveLeaks:   []string{},
		InactiveLeaks: []string{},
	}
	for _, id := range s.ActiveLeaks() {
		r.ActiveLeaks = append(r.ActiveLeaks, string(id))
	}
	for _, id := range s.InactiveLeaks() {
		r.InactiveLeaks = append(r.InactiveLeaks, string(id))
	}
	r.ActiveLeakCount = len(r.ActiveLeaks)
	r.InactiveLeakCount = len(r.InactiveLeaks)
	r.TotalLeaks = r.ActiveLeakCount + r.InactiveLeakCount
	return r
}
