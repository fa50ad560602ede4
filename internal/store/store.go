// Package store defines the shared realtime key-value store both front
// ends synchronize through, and the lenient decoding of its contents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
)

// Section names of the shared store. Each section is replaced as a whole
// value on write.
const (
	SectionValves      = "valves"
	SectionTaps        = "taps"
	SectionLeaks       = "leaks"
	SectionActiveLeaks = "active_leaks"
	SectionWaterFlow   = "water_flow"
	SectionSensors     = "sensors"
	SectionWaterLevel  = "water_level"
	SectionTimestamp   = "timestamp"
	SectionLeakReport  = "leak_report"
)

// Sections lists every known section in publish order.
var Sections = []string{
	SectionTimestamp,
	SectionSensors,
	SectionWaterLevel,
	SectionValves,
	SectionTaps,
	SectionLeaks,
	SectionWaterFlow,
	SectionActiveLeaks,
	SectionLeakReport,
}

// ErrUnavailable is returned when the backing transport is not connected.
var ErrUnavailable = errors.New("store unavailable")

// Store is the shared store contract. Get returns the full current
// snapshot; Set replaces one named section.
type Store interface {
	Get(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, section string, value any) error
}

// Snapshot is a decoded, point-in-time copy of the store. Absent or
// malformed sections decode to empty maps and zero values.
type Snapshot struct {
	Valves      map[string]bool    `json:"valves"`
	Taps        map[string]bool    `json:"taps"`
	Leaks       map[string]bool    `json:"leaks"`
	ActiveLeaks map[string]bool    `json:"active_leaks"`
	WaterFlow   map[string]bool    `json:"water_flow"`
	Sensors     map[string]float64 `json:"sensors"`
	WaterLevel  int                `json:"water_level"`
	Timestamp   string             `json:"timestamp"`
	LeakReport  json.RawMessage    `json:"leak_report,omitempty"`
}

// Empty returns a snapshot with every map initialized.
func Empty() Snapshot {
	return Snapshot{
		Valves:      map[string]bool{},
		Taps:        map[string]bool{},
		Leaks:       map[string]bool{},
		ActiveLeaks: map[string]bool{},
		WaterFlow:   map[string]bool{},
		Sensors:     map[string]float64{},
	}
}

// Equal reports whether two snapshots carry the same content.
func (s Snapshot) Equal(o Snapshot) bool {
	return reflect.DeepEqual(s.normalized(), o.normalized())
}

func (s Snapshot) normalized() Snapshot {
	n := s
	if n.Valves == nil {
		n.Valves = map[string]bool{}
	}
	if n.Taps == nil {
		n.Taps = map[string]bool{}
	}
	if n.Leaks == nil {
		n.Leaks = map[string]bool{}
	}
	if n.ActiveLeaks == nil {
		n.ActiveLeaks = map[string]bool{}
	}
	if n.WaterFlow == nil {
		n.WaterFlow = map[string]bool{}
	}
	if n.Sensors == nil {
		n.Sensors = map[string]float64{}
	}
	if len(n.LeakReport) == 0 {
		n.LeakReport = nil
	}
	return n
}

// Decode builds a snapshot from raw JSON section payloads. Unknown
// sections are ignored; a section that fails to parse is left empty.
func Decode(sections map[string][]byte) Snapshot {
	snap := Empty()
	for name, raw := range sections {
		switch name {
		case SectionValves:
			snap.Valves = decodeFlags(raw)
		case SectionTaps:
			snap.Taps = decodeFlags(raw)
		case SectionLeaks:
			snap.Leaks = decodeFlags(raw)
		case SectionActiveLeaks:
			snap.ActiveLeaks = decodeFlags(raw)
		case SectionWaterFlow:
			snap.WaterFlow = decodeFlags(raw)
		case SectionSensors:
			snap.Sensors = decodeNumbers(raw)
		case SectionWaterLevel:
			snap.WaterLevel = decodeLevel(raw)
		case SectionTimestamp:
			var ts string
			if json.Unmarshal(raw, &ts) == nil {
				snap.Timestamp = ts
			}
		case SectionLeakReport:
			if json.Valid(raw) {
				snap.LeakReport = append(json.RawMessage{}, raw...)
			}
		}
	}
	return snap
}

// DecodeDocument decodes a whole-store JSON document keyed by section.
func DecodeDocument(doc []byte) Snapshot {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return Empty()
	}
	sections := make(map[string][]byte, len(raw))
	for k, v := range raw {
		sections[k] = v
	}
	return Decode(sections)
}

// Flags encodes a boolean map the way the store carries it (0/1 integers).
func Flags[K ~string](m map[K]bool) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		if v {
			out[string(k)] = 1
		} else {
			out[string(k)] = 0
		}
	}
	return out
}

func decodeFlags(raw []byte) map[string]bool {
	out := map[string]bool{}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		out[k] = truthy(v)
	}
	return out
}

func decodeNumbers(raw []byte) map[string]float64 {
	out := map[string]float64{}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		if f, ok := number(v); ok {
			out[k] = f
		}
	}
	return out
}

// decodeLevel reads a tank level percent, rounded and clamped to 0..100.
func decodeLevel(raw []byte) int {
	f := decodeNumber(raw)
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 100:
		return 100
	}
	return int(math.Round(f))
}

func decodeNumber(raw []byte) float64 {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	f, _ := number(v)
	return f
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b
		}
		f, err := strconv.ParseFloat(t, 64)
		return err == nil && f != 0
	}
	return false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
