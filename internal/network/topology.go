package network

import "fmt"

// NodeID identifies a node in the distribution tree.
type NodeID string

const (
	Tank      NodeID = "TANK"
	S1        NodeID = "S1"
	S2        NodeID = "S2"
	S3        NodeID = "S3"
	S4        NodeID = "S4"
	S5        NodeID = "S5"
	S6        NodeID = "S6"
	S7        NodeID = "S7"
	S8        NodeID = "S8"
	ValveA    NodeID = "VALVE_A"
	JunctionE NodeID = "JUNCTION_E"
	Tap1      NodeID = "TAP1"
	Tap2      NodeID = "TAP2"
	Tap3      NodeID = "TAP3"
	Tap4      NodeID = "TAP4"
	Tap5      NodeID = "TAP5"
)

// ValveID identifies a valve. A valve sits on a node and gates every
// segment leaving that node.
type ValveID string

const (
	TankValve    ValveID = "TANK_VALVE"
	DistribValve ValveID = "VALVE_A"
)

// NodeKind classifies a node and decides its gate.
type NodeKind string

const (
	KindTank     NodeKind = "tank"
	KindSensor   NodeKind = "sensor"
	KindValve    NodeKind = "valve"
	KindJunction NodeKind = "junction"
	KindTap      NodeKind = "tap"
)

// Node is a point in the network. Nodes carry no mutable state; taps and
// valves are tracked by the Engine.
type Node struct {
	ID   NodeID   `json:"id"`
	Kind NodeKind `json:"kind"`
}

// SegmentID is the wire identifier of a pipe segment ("FROM-TO").
type SegmentID string

// Segment is a directed pipe between two nodes.
type Segment struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// ID returns the segment's wire identifier.
func (s Segment) ID() SegmentID {
	return SegmentID(string(s.From) + "-" + string(s.To))
}

// Valve binds a valve id to the node whose outgoing segments it gates.
type Valve struct {
	ID ValveID `json:"id"`
	At NodeID  `json:"at"`
}

// Topology is an immutable tree of nodes and segments rooted at the tank.
type Topology struct {
	root     NodeID
	nodes    map[NodeID]Node
	valves   []Valve
	valveAt  map[NodeID]ValveID
	segments []Segment // depth-first order from root
	byID     map[SegmentID]Segment
	children map[NodeID][]Segment
	taps     []NodeID
}

// NewTopology validates that segments form a tree rooted at root and
// returns the resulting topology.
func NewTopology(root NodeID, nodes []Node, segments []Segment, valves []Valve) (*Topology, error) {
	t := &Topology{
		root:     root,
		nodes:    make(map[NodeID]Node, len(nodes)),
		valveAt:  make(map[NodeID]ValveID, len(valves)),
		byID:     make(map[SegmentID]Segment, len(segments)),
		children: make(map[NodeID][]Segment),
	}

	for _, n := range nodes {
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node: %s", n.ID)
		}
		t.nodes[n.ID] = n
	}
	if _, ok := t.nodes[root]; !ok {
		return nil, fmt.Errorf("root node not found: %s", root)
	}

	parents := make(map[NodeID]NodeID, len(segments))
	for _, s := range segments {
		if _, ok := t.nodes[s.From]; !ok {
			return nil, fmt.Errorf("segment %s: unknown node %s", s.ID(), s.From)
		}
		if _, ok := t.nodes[s.To]; !ok {
			return nil, fmt.Errorf("segment %s: unknown node %s", s.ID(), s.To)
		}
		if s.To == root {
			return nil, fmt.Errorf("segment %s: root cannot have a parent", s.ID())
		}
		if p, ok := parents[s.To]; ok {
			return nil, fmt.Errorf("node %s has two parents (%s, %s)", s.To, p, s.From)
		}
		parents[s.To] = s.From
		t.byID[s.ID()] = s
		t.children[s.From] = append(t.children[s.From], s)
	}

	for _, v := range valves {
		if _, ok := t.nodes[v.At]; !ok {
			return nil, fmt.Errorf("valve %s: unknown node %s", v.ID, v.At)
		}
		t.valves = append(t.valves, v)
		t.valveAt[v.At] = v.ID
	}

	// Walk from the root; anything unvisited is disconnected.
	visited := map[NodeID]bool{root: true}
	var walk func(NodeID)
	walk = func(n NodeID) {
		if t.nodes[n].Kind == KindTap {
			t.taps = append(t.taps, n)
		}
		for _, s := range t.children[n] {
			visited[s.To] = true
			t.segments = append(t.segments, s)
			walk(s.To)
		}
	}
	walk(root)

	for id := range t.nodes {
		if !visited[id] {
			return nil, fmt.Errorf("node %s is not reachable from %s", id, root)
		}
	}

	return t, nil
}

// DefaultTopology returns the fixed network: tank, a trunk through S1 and
// S2 to valve A, two tap branches off the valve, and a junction feeding
// three more taps.
func DefaultTopology() *Topology {
	nodes := []Node{
		{Tank, KindTank},
		{S1, KindSensor}, {S2, KindSensor}, {S3, KindSensor}, {S4, KindSensor},
		{S5, KindSensor}, {S6, KindSensor}, {S7, KindSensor}, {S8, KindSensor},
		{ValveA, KindValve},
		{JunctionE, KindJunction},
		{Tap1, KindTap}, {Tap2, KindTap}, {Tap3, KindTap}, {Tap4, KindTap}, {Tap5, KindTap},
	}
	segments := []Segment{
		{Tank, S1},
		{S1, S2},
		{S2, ValveA},
		{ValveA, S3}, {S3, Tap1},
		{ValveA, S4}, {S4, Tap2},
		{ValveA, S5}, {S5, JunctionE},
		{JunctionE, S6}, {S6, Tap3},
		{JunctionE, S7}, {S7, Tap4},
		{JunctionE, S8}, {S8, Tap5},
	}
	valves := []Valve{
		{TankValve, Tank},
		{DistribValve, ValveA},
	}

	t, err := NewTopology(Tank, nodes, segments, valves)
	if err != nil {
		panic("network: invalid default topology: " + err.Error())
	}
	return t
}

// Root returns the supply node.
func (t *Topology) Root() NodeID {
	return t.root
}

// Node returns the node with the given id.
func (t *Topology) Node(id NodeID) (Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Segment looks up a segment by wire id.
func (t *Topology) Segment(id SegmentID) (Segment, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Segments returns every segment in depth-first order from the root.
func (t *Topology) Segments() []Segment {
	return append([]Segment{}, t.segments...)
}

// Children returns the segments leaving a node.
func (t *Topology) Children(id NodeID) []Segment {
	return append([]Segment{}, t.children[id]...)
}

// Taps returns the tap nodes in depth-first order.
func (t *Topology) Taps() []NodeID {
	return append([]NodeID{}, t.taps...)
}

// Valves returns the valves in declaration order.
func (t *Topology) Valves() []Valve {
	return append([]Valve{}, t.valves...)
}

// ValveAt returns the valve gating a node, if any.
func (t *Topology) ValveAt(id NodeID) (ValveID, bool) {
	v, ok := t.valveAt[id]
	return v, ok
}

// Gate classifies how a node controls water passing through it.
type Gate int

const (
	GateAlways Gate = iota
	GateValve
	GateTap
)

// Gate returns the gate kind of a node: valves gate their outgoing
// segments, taps gate their incoming segment, anything else always passes.
func (t *Topology) Gate(id NodeID) Gate {
	if _, ok := t.valveAt[id]; ok {
		return GateValve
	}
	if t.nodes[id].Kind == KindTap {
		return GateTap
	}
	return GateAlways
}

// HasValve reports whether the valve exists in this topology.
func (t *Topology) HasValve(id ValveID) bool {
	for _, v := range t.valves {
		if v.ID == id {
			return true
		}
	}
	return false
}
