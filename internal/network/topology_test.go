package network

import (
	"strings"
	"testing"
)

func TestDefaultTopologyShape(t *testing.T) {
	topo := DefaultTopology()

	if topo.Root() != Tank {
		t.Errorf("expected root TANK, got %s", topo.Root())
	}

	want := []SegmentID{
		"TANK-S1", "S1-S2", "S2-VALVE_A",
		"VALVE_A-S3", "S3-TAP1",
		"VALVE_A-S4", "S4-TAP2",
		"VALVE_A-S5", "S5-JUNCTION_E",
		"JUNCTION_E-S6", "S6-TAP3",
		"JUNCTION_E-S7", "S7-TAP4",
		"JUNCTION_E-S8", "S8-TAP5",
	}
	got := topo.Segments()
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(got))
	}
	for i, s := range got {
		if s.ID() != want[i] {
			t.Errorf("segment %d: expected %s, got %s", i, want[i], s.ID())
		}
	}

	taps := topo.Taps()
	if len(taps) != 5 || taps[0] != Tap1 || taps[4] != Tap5 {
		t.Errorf("unexpected taps: %v", taps)
	}
	if v, ok := topo.ValveAt(ValveA); !ok || v != DistribValve {
		t.Errorf("expected VALVE_A to gate node VALVE_A, got %v %v", v, ok)
	}
	if !topo.HasValve(TankValve) || topo.HasValve("VALVE_B") {
		t.Error("unexpected valve membership")
	}
	if _, ok := topo.Segment("S3-TAP1"); !ok {
		t.Error("expected S3-TAP1 lookup to succeed")
	}
	if _, ok := topo.Segment("TAP1-S3"); ok {
		t.Error("segment ids are directed")
	}
}

func TestNewTopologyRejectsNonTrees(t *testing.T) {
	nodes := []Node{{"R", KindTank}, {"A", KindSensor}, {"B", KindSensor}, {"C", KindTap}}

	tests := []struct {
		name     string
		segments []Segment
		valves   []Valve
		wantErr  string
	}{
		{
			name:     "two parents",
			segments: []Segment{{"R", "A"}, {"R", "B"}, {"A", "C"}, {"B", "C"}},
			wantErr:  "two parents",
		},
		{
			name:     "edge into root",
			segments: []Segment{{"R", "A"}, {"A", "R"}},
			wantErr:  "root cannot have a parent",
		},
		{
			name:     "detached cycle",
			segments: []Segment{{"R", "C"}, {"A", "B"}, {"B", "A"}},
			wantErr:  "not reachable",
		},
		{
			name:     "unknown node",
			segments: []Segment{{"R", "Z"}},
			wantErr:  "unknown node",
		},
		{
			name:     "valve on unknown node",
			segments: []Segment{{"R", "A"}, {"A", "B"}, {"B", "C"}},
			valves:   []Valve{{"V", "Q"}},
			wantErr:  "unknown node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTopology("R", nodes, tt.segments, tt.valves)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNames(t *testing.T) {
	if got := TapName("TAP1"); got != "Kitchen Sink" {
		t.Errorf("unexpected tap name %q", got)
	}
	if got := PipeName("S3-TAP1"); got == "" || got == "S3-TAP1" {
		t.Errorf("expected a friendly pipe name, got %q", got)
	}
	if got := PipeName("NOPE"); got != "NOPE" {
		t.Errorf("expected unknown pipe to fall back to its id, got %q", got)
	}
}

func TestGate(t *testing.T) {
	topo := DefaultTopology()
	cases := map[NodeID]Gate{
		Tank:      GateValve,
		ValveA:    GateValve,
		S3:        GateAlways,
		JunctionE: GateAlways,
		Tap2:      GateTap,
	}
	for id, want := range cases {
		if got := topo.Gate(id); got != want {
			t.Errorf("%s: expected gate %d, got %d", id, want, got)
		}
	}
}
