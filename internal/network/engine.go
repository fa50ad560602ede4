// Package network models the water distribution tree and derives which
// segments carry water and which leaks are active.
package network

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/watermon/internal/store"
)

var (
	ErrUnknownValve   = errors.New("unknown valve")
	ErrUnknownTap     = errors.New("unknown tap")
	ErrUnknownSegment = errors.New("unknown segment")
	ErrUnknownSensor  = errors.New("unknown sensor")
)

// Sensor names carried alongside the network state.
const (
	SensorPH        = "pH"
	SensorTurbidity = "turbidity"
	SensorSalinity  = "salinity"
	SensorFlow      = "flow"
)

// DefaultWaterLevel is the tank level at startup.
const DefaultWaterLevel = 49

// Publisher receives every recomputed snapshot. Implementations must not
// block for long and must swallow their own failures.
type Publisher interface {
	Publish(snap FlowSnapshot)
}

// Engine owns valve, tap, leak, water level, and sensor state and
// recomputes flow on every mutation.
type Engine struct {
	mu      sync.Mutex
	topo    *Topology
	valves  map[ValveID]bool
	taps    map[NodeID]bool
	leaks   map[SegmentID]bool
	level   int
	sensors map[string]float64
	last    FlowSnapshot
	now     func() time.Time

	pubMu     sync.Mutex
	publisher Publisher
}

// NewEngine creates an engine with both valves open, every tap closed, no
// leaks, and the default water level.
func NewEngine(topo *Topology) *Engine {
	e := &Engine{
		topo:   topo,
		valves: make(map[ValveID]bool),
		taps:   make(map[NodeID]bool),
		leaks:  make(map[SegmentID]bool),
		level:  DefaultWaterLevel,
		sensors: map[string]float64{
			SensorPH:        7.0,
			SensorTurbidity: 5.0,
			SensorSalinity:  0.5,
			SensorFlow:      2.5,
		},
		now: time.Now,
	}
	for _, v := range topo.Valves() {
		e.valves[v.ID] = true
	}
	for _, t := range topo.Taps() {
		e.taps[t] = false
	}
	for _, s := range topo.Segments() {
		e.leaks[s.ID()] = false
	}
	e.mu.Lock()
	e.recomputeLocked()
	e.mu.Unlock()
	return e
}

// SetPublisher sets the sink for recomputed snapshots. Nil disables
// publishing.
func (e *Engine) SetPublisher(p Publisher) {
	e.pubMu.Lock()
	e.publisher = p
	e.pubMu.Unlock()
}

// SetClock overrides the timestamp source (for testing).
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Topology returns the engine's topology.
func (e *Engine) Topology() *Topology {
	return e.topo
}

// SetValve opens or closes a valve.
func (e *Engine) SetValve(id ValveID, open bool) (FlowSnapshot, error) {
	return e.mutate(func() error {
		if _, ok := e.valves[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownValve, id)
		}
		e.valves[id] = open
		return nil
	})
}

// SetTap opens or closes a tap.
func (e *Engine) SetTap(id NodeID, open bool) (FlowSnapshot, error) {
	return e.mutate(func() error {
		if _, ok := e.taps[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTap, id)
		}
		e.taps[id] = open
		return nil
	})
}

// SetLeak marks or clears a leak on a segment.
func (e *Engine) SetLeak(id SegmentID, hasLeak bool) (FlowSnapshot, error) {
	return e.mutate(func() error {
		if _, ok := e.leaks[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSegment, id)
		}
		e.leaks[id] = hasLeak
		return nil
	})
}

// SetWaterLevel sets the tank level, clamped to 0..100.
func (e *Engine) SetWaterLevel(pct int) FlowSnapshot {
	snap, _ := e.mutate(func() error {
		e.level = clampLevel(pct)
		return nil
	})
	return snap
}

// SetSensor records a sensor reading. Sensors do not affect flow.
func (e *Engine) SetSensor(name string, value float64) (FlowSnapshot, error) {
	return e.mutate(func() error {
		if _, ok := e.sensors[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSensor, name)
		}
		e.sensors[name] = value
		return nil
	})
}

// ToggleValve flips a valve.
func (e *Engine) ToggleValve(id ValveID) (FlowSnapshot, error) {
	return e.mutate(func() error {
		open, ok := e.valves[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownValve, id)
		}
		e.valves[id] = !open
		return nil
	})
}

// ToggleTap flips a tap.
func (e *Engine) ToggleTap(id NodeID) (FlowSnapshot, error) {
	return e.mutate(func() error {
		open, ok := e.taps[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTap, id)
		}
		e.taps[id] = !open
		return nil
	})
}

// ToggleLeak flips the leak flag of a segment.
func (e *Engine) ToggleLeak(id SegmentID) (FlowSnapshot, error) {
	return e.mutate(func() error {
		has, ok := e.leaks[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSegment, id)
		}
		e.leaks[id] = !has
		return nil
	})
}

// Recompute derives flow from the current state and publishes it.
func (e *Engine) Recompute() FlowSnapshot {
	snap, _ := e.mutate(func() error { return nil })
	return snap
}

// Snapshot returns the most recent recomputation without recomputing.
func (e *Engine) Snapshot() FlowSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Restore loads valve, tap, leak, level, and sensor state from a store
// snapshot. Sections that are absent keep their current values; ids the
// topology does not know are ignored. Derived sections are recomputed,
// not trusted. The restored state is not published.
func (e *Engine) Restore(s store.Snapshot) FlowSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, open := range s.Valves {
		if _, ok := e.valves[ValveID(id)]; ok {
			e.valves[ValveID(id)] = open
		}
	}
	for id, open := range s.Taps {
		if _, ok := e.taps[NodeID(id)]; ok {
			e.taps[NodeID(id)] = open
		}
	}
	for id, has := range s.Leaks {
		if _, ok := e.leaks[SegmentID(id)]; ok {
			e.leaks[SegmentID(id)] = has
		}
	}
	for name, v := range s.Sensors {
		if _, ok := e.sensors[name]; ok {
			e.sensors[name] = v
		}
	}
	if len(s.Valves) > 0 || s.WaterLevel > 0 {
		e.level = clampLevel(s.WaterLevel)
	}
	return e.recomputeLocked()
}

func (e *Engine) mutate(fn func() error) (FlowSnapshot, error) {
	e.mu.Lock()
	if err := fn(); err != nil {
		snap := e.last
		e.mu.Unlock()
		return snap, err
	}
	snap := e.recomputeLocked()
	e.mu.Unlock()

	e.publish()
	return snap, nil
}

// publish sends the latest snapshot; serialized so the last writer wins.
func (e *Engine) publish() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(e.Snapshot())
}

func (e *Engine) recomputeLocked() FlowSnapshot {
	segments := e.topo.Segments()
	snap := FlowSnapshot{
		Valves:     make(map[ValveID]bool, len(e.valves)),
		Taps:       make(map[NodeID]bool, len(e.taps)),
		Segments:   make(map[SegmentID]SegmentState, len(segments)),
		Order:      make([]SegmentID, 0, len(segments)),
		WaterLevel: e.level,
		Sensors:    make(map[string]float64, len(e.sensors)),
		Timestamp:  e.now(),
	}
	for id, open := range e.valves {
		snap.Valves[id] = open
	}
	for id, open := range e.taps {
		snap.Taps[id] = open
	}
	for k, v := range e.sensors {
		snap.Sensors[k] = v
	}
	for _, s := range segments {
		snap.Order = append(snap.Order, s.ID())
		snap.Segments[s.ID()] = SegmentState{HasLeak: e.leaks[s.ID()]}
	}

	// No supply: every segment is dry.
	if snap.Supplied() {
		e.propagate(e.topo.Root(), true, snap.Segments)
	}

	for id, st := range snap.Segments {
		st.IsActiveLeak = st.HasLeak && st.HasFlow
		snap.Segments[id] = st
	}

	e.last = snap
	return snap
}

// propagate walks the tree below node. A segment carries water when its
// upstream does, the gate at its source node passes, and its
// destination admits water.
func (e *Engine) propagate(node NodeID, upstream bool, out map[SegmentID]SegmentState) {
	for _, seg := range e.topo.Children(node) {
		flowing := upstream && e.passes(seg.From) && e.admits(seg.To)
		st := out[seg.ID()]
		st.HasFlow = flowing
		out[seg.ID()] = st
		e.propagate(seg.To, flowing, out)
	}
}

// passes is the gate at a source node: a valve must be open, the root
// must hold water, anything else passes unconditionally.
func (e *Engine) passes(node NodeID) bool {
	if node == e.topo.Root() && e.level <= 0 {
		return false
	}
	if e.topo.Gate(node) == GateValve {
		v, _ := e.topo.ValveAt(node)
		return e.valves[v]
	}
	return true
}

// admits is the gate at a destination node: a tap only draws water while
// open.
func (e *Engine) admits(node NodeID) bool {
	if e.topo.Gate(node) == GateTap {
		return e.taps[node]
	}
	return true
}

func clampLevel(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
