// Package panel is the terminal control panel: it renders the network and
// maps key presses to engine calls.
package panel

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AaronLay10/watermon/internal/network"
)

// levelStep is how far one key press moves the tank level.
const levelStep = 5

type controlKind int

const (
	controlValve controlKind = iota
	controlTap
	controlLevel
	controlSensor
	controlSegment
)

var kindHeaders = map[controlKind]string{
	controlValve:   "Valves",
	controlTap:     "Taps",
	controlLevel:   "Tank",
	controlSensor:  "Sensors",
	controlSegment: "Pipes",
}

type control struct {
	kind  controlKind
	id    string
	label string
}

type sensorRange struct {
	min, max, step float64
}

var sensorRanges = map[string]sensorRange{
	network.SensorPH:        {0, 14, 0.5},
	network.SensorTurbidity: {0, 100, 1},
	network.SensorSalinity:  {0, 50, 1},
	network.SensorFlow:      {0, 10, 0.5},
}

var sensorOrder = []string{
	network.SensorPH,
	network.SensorTurbidity,
	network.SensorSalinity,
	network.SensorFlow,
}

func buildControls(topo *network.Topology) []control {
	var out []control
	for _, v := range topo.Valves() {
		out = append(out, control{controlValve, string(v.ID), network.ValveName(string(v.ID))})
	}
	for _, t := range topo.Taps() {
		out = append(out, control{controlTap, string(t), network.TapName(string(t))})
	}
	out = append(out, control{controlLevel, "water_level", "Water level"})
	for _, s := range sensorOrder {
		out = append(out, control{controlSensor, s, s})
	}
	for _, s := range topo.Segments() {
		out = append(out, control{controlSegment, string(s.ID()), network.PipeName(string(s.ID()))})
	}
	return out
}

// StatusFunc reports the store link for the status line.
type StatusFunc func() string

// Model is the Bubble Tea model of the control panel.
type Model struct {
	engine     *network.Engine
	snap       network.FlowSnapshot
	controls   []control
	cursor     int
	status     StatusFunc
	help       help.Model
	keys       keyMap
	width      int
	height     int
	message    string
	messageErr bool
}

// New creates a panel over e. status may be nil.
func New(e *network.Engine, status StatusFunc) Model {
	return Model{
		engine:   e,
		snap:     e.Snapshot(),
		controls: buildControls(e.Topology()),
		status:   status,
		help:     help.New(),
		keys:     keys,
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.snap = m.engine.Snapshot()
		return m, tickCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.controls)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			m.toggle()
		case key.Matches(msg, m.keys.Leak):
			m.toggleLeak()
		case key.Matches(msg, m.keys.Increase):
			m.adjust(1)
		case key.Matches(msg, m.keys.Decrease):
			m.adjust(-1)
		}
	}
	return m, nil
}

func (m *Model) selected() control {
	return m.controls[m.cursor]
}

func (m *Model) toggle() {
	c := m.selected()
	var snap network.FlowSnapshot
	var err error
	switch c.kind {
	case controlValve:
		snap, err = m.engine.ToggleValve(network.ValveID(c.id))
		if err == nil {
			m.info("%s %s", c.label, openWord(snap.Valves[network.ValveID(c.id)]))
		}
	case controlTap:
		snap, err = m.engine.ToggleTap(network.NodeID(c.id))
		if err == nil {
			m.info("%s %s", c.label, openWord(snap.Taps[network.NodeID(c.id)]))
		}
	case controlSegment:
		m.toggleLeak()
		return
	default:
		m.fail("use ←/→ to adjust %s", c.label)
		return
	}
	m.apply(snap, err)
}

func (m *Model) toggleLeak() {
	c := m.selected()
	if c.kind != controlSegment {
		m.fail("select a pipe to toggle a leak")
		return
	}
	snap, err := m.engine.ToggleLeak(network.SegmentID(c.id))
	if err == nil {
		st := snap.Segments[network.SegmentID(c.id)]
		switch {
		case st.IsActiveLeak:
			m.info("Active leak on %s", c.label)
		case st.HasLeak:
			m.info("Leak on %s (no flow)", c.label)
		default:
			m.info("Leak on %s repaired", c.label)
		}
	}
	m.apply(snap, err)
}

func (m *Model) adjust(dir int) {
	c := m.selected()
	switch c.kind {
	case controlLevel:
		snap := m.engine.SetWaterLevel(m.snap.WaterLevel + dir*levelStep)
		m.info("Water level %d%%", snap.WaterLevel)
		m.apply(snap, nil)
	case controlSensor:
		r := sensorRanges[c.id]
		v := m.snap.Sensors[c.id] + float64(dir)*r.step
		v = min(max(v, r.min), r.max)
		snap, err := m.engine.SetSensor(c.id, v)
		if err == nil {
			m.info("%s %.1f", c.label, v)
		}
		m.apply(snap, err)
	default:
		m.fail("%s has no level to adjust", c.label)
	}
}

func (m *Model) apply(snap network.FlowSnapshot, err error) {
	if err != nil {
		m.fail("%v", err)
		return
	}
	m.snap = snap
}

func (m *Model) info(format string, args ...any) {
	m.message = fmt.Sprintf(format, args...)
	m.messageErr = false
}

func (m *Model) fail(format string, args ...any) {
	m.message = fmt.Sprintf(format, args...)
	m.messageErr = true
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Water Distribution Control Panel"))
	s.WriteString("\n")

	controls := boxStyle.Render(m.renderControls())
	tree := boxStyle.Render(headerStyle.Render("Network") + "\n" + m.renderTree())
	s.WriteString(contentStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, controls, tree)))
	s.WriteString("\n")
	s.WriteString(contentStyle.Render(m.renderStatus()))
	s.WriteString("\n")

	if m.message != "" {
		s.WriteString("\n  ")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return s.String()
}

func (m Model) renderControls() string {
	var b strings.Builder
	last := controlKind(-1)
	for i, c := range m.controls {
		if c.kind != last {
			if last != -1 {
				b.WriteString("\n")
			}
			b.WriteString(headerStyle.Render(kindHeaders[c.kind]))
			b.WriteString("\n")
			last = c.kind
		}
		line := fmt.Sprintf("%-38s %s", c.label, m.controlValue(c))
		if i == m.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) controlValue(c control) string {
	switch c.kind {
	case controlValve:
		return openLabel(m.snap.Valves[network.ValveID(c.id)])
	case controlTap:
		return openLabel(m.snap.Taps[network.NodeID(c.id)])
	case controlLevel:
		return fmt.Sprintf("%d%%", m.snap.WaterLevel)
	case controlSensor:
		return fmt.Sprintf("%.1f", m.snap.Sensors[c.id])
	case controlSegment:
		return leakLabel(m.snap.Segments[network.SegmentID(c.id)])
	}
	return ""
}

func (m Model) renderTree() string {
	var b strings.Builder
	topo := m.engine.Topology()
	root := topo.Root()
	b.WriteString(m.nodeLabel(root))
	b.WriteString("\n")
	m.renderChildren(&b, topo, root, "")
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderChildren(b *strings.Builder, topo *network.Topology, id network.NodeID, prefix string) {
	children := topo.Children(id)
	for i, seg := range children {
		branch, next := "├─", "│ "
		if i == len(children)-1 {
			branch, next = "└─", "  "
		}
		st := m.snap.Segments[seg.ID()]
		pipe := dryStyle.Render("┄┄┄")
		if st.HasFlow {
			pipe = flowStyle.Render("━━━")
		}
		fmt.Fprintf(b, "%s%s%s %s", prefix, branch, pipe, m.nodeLabel(seg.To))
		if st.HasLeak {
			b.WriteString(" " + leakLabel(st))
		}
		b.WriteString("\n")
		m.renderChildren(b, topo, seg.To, prefix+next)
	}
}

func (m Model) nodeLabel(id network.NodeID) string {
	topo := m.engine.Topology()
	label := string(id)
	if v, ok := topo.ValveAt(id); ok {
		label += " " + network.ValveName(string(v)) + " " + openLabel(m.snap.Valves[v])
	}
	if topo.Gate(id) == network.GateTap {
		label += " " + network.TapName(string(id)) + " " + openLabel(m.snap.Taps[id])
	}
	if id == topo.Root() {
		label += fmt.Sprintf(" %d%%", m.snap.WaterLevel)
	}
	return label
}

func (m Model) renderStatus() string {
	report := m.snap.LeakReport()
	parts := []string{
		"Level " + levelBar(m.snap.WaterLevel),
		fmt.Sprintf("Active leaks %d", report.ActiveLeakCount),
		fmt.Sprintf("Dry leaks %d", report.InactiveLeakCount),
	}
	if !m.snap.Supplied() {
		parts = append(parts, closedStyle.Render("NO SUPPLY"))
	}
	if m.status != nil {
		parts = append(parts, "Store "+m.status())
	}
	return strings.Join(parts, "  •  ")
}

func levelBar(pct int) string {
	filled := pct / 10
	return fmt.Sprintf("[%s%s] %d%%", flowStyle.Render(strings.Repeat("█", filled)), strings.Repeat("░", 10-filled), pct)
}

func openWord(open bool) string {
	if open {
		return "opened"
	}
	return "closed"
}

func openLabel(open bool) string {
	if open {
		return openStyle.Render("OPEN")
	}
	return closedStyle.Render("CLOSED")
}

func leakLabel(st network.SegmentState) string {
	switch {
	case st.IsActiveLeak:
		return activeLeakStyle.Render("ACTIVE LEAK")
	case st.HasLeak:
		return inactiveLeakStyle.Render("leak (dry)")
	}
	return dryStyle.Render("ok")
}
