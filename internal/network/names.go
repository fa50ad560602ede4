package network

var valveNames = map[ValveID]string{
	TankValve:    "Main Supply Valve",
	DistribValve: "Distribution Zone Valve",
}

var tapNames = map[NodeID]string{
	Tap1: "Kitchen Sink",
	Tap2: "Bathroom Sink",
	Tap3: "Garden Tap",
	Tap4: "Laundry Room",
	Tap5: "Emergency Supply",
}

var pipeNames = map[SegmentID]string{
	"TANK-S1":       "Main Supply Line (Tank to Station 1)",
	"S1-S2":         "Primary Distribution Line (Station 1 to Station 2)",
	"S2-VALVE_A":    "Control Valve Supply Line",
	"VALVE_A-S3":    "Zone A - Branch Line 1",
	"S3-TAP1":       "Zone A - Tap 1 Supply Line",
	"VALVE_A-S4":    "Zone A - Branch Line 2",
	"S4-TAP2":       "Zone A - Tap 2 Supply Line",
	"VALVE_A-S5":    "Main Distribution Trunk",
	"S5-JUNCTION_E": "Junction Supply Line",
	"JUNCTION_E-S6": "Zone B - Branch Line 1",
	"S6-TAP3":       "Zone B - Tap 3 Supply Line",
	"JUNCTION_E-S7": "Zone B - Branch Line 2",
	"S7-TAP4":       "Zone B - Tap 4 Supply Line",
	"JUNCTION_E-S8": "Zone B - Branch Line 3",
	"S8-TAP5":       "Zone B - Tap 5 Supply Line",
}

// ValveName returns the display name of a valve, or the id if unnamed.
func ValveName(id string) string {
	if n, ok := valveNames[ValveID(id)]; ok {
		return n
	}
	return id
}

// TapName returns the display name of a tap, or the id if unnamed.
func TapName(id string) string {
	if n, ok := tapNames[NodeID(id)]; ok {
		return n
	}
	return id
}

// PipeName returns the display name of a segment, or the id if unnamed.
func PipeName(id string) string {
	if n, ok := pipeNames[SegmentID(id)]; ok {
		return n
	}
	return id
}
