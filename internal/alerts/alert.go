// Package alerts runs the alert lifecycle: detecting leak and water level
// conditions, assigning mechanics, acknowledging, and resolving.
package alerts

import (
	"errors"
	"time"

	"github.com/AaronLay10/watermon/internal/access"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("alert not found")
	ErrNotLeak         = errors.New("alert is not a leak")
	ErrUnknownPipe     = errors.New("unknown pipe")
	ErrUnknownMechanic = errors.New("unknown mechanic")
)

// Kind is the condition an alert tracks.
type Kind string

const (
	KindLeak       Kind = "leak"
	KindWaterLevel Kind = "water_level"
)

// Severity ranks alerts for display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Status is the lifecycle position of an alert.
type Status string

const (
	StatusUnassigned   Status = "unassigned"
	StatusAssigned     Status = "assigned"
	StatusReassigned   Status = "reassigned"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

const (
	// LowWaterID is the id of the single water level alert.
	LowWaterID = "low_water_level"
	// DefaultThreshold is the water level percent below which the low
	// water alert is raised.
	DefaultThreshold = 20
	// DefaultHistoryLimit is how many history entries a query returns
	// when no limit is given.
	DefaultHistoryLimit = 50
)

// LeakID returns the alert id for a leaking pipe segment.
func LeakID(pipeID string) string {
	return "leak_" + pipeID
}

// Alert is one active or historical condition.
type Alert struct {
	ID                   string     `json:"id"`
	Kind                 Kind       `json:"type"`
	Severity             Severity   `json:"severity"`
	Title                string     `json:"title"`
	Message              string     `json:"message"`
	PipeID               string     `json:"pipe_id,omitempty"`
	PipeName             string     `json:"pipe_name,omitempty"`
	Level                *int       `json:"level,omitempty"`
	CreatedAt            time.Time  `json:"timestamp"`
	Acknowledged         bool       `json:"acknowledged"`
	AcknowledgedAt       *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy       string     `json:"acknowledged_by,omitempty"`
	Resolved             bool       `json:"resolved"`
	ResolvedAt           *time.Time `json:"resolved_at"`
	ResolvedBy           string     `json:"resolved_by,omitempty"`
	AssignedMechanicID   string     `json:"assigned_mechanic_id,omitempty"`
	AssignedMechanicName string     `json:"assigned_mechanic_name,omitempty"`
	Status               Status     `json:"status"`
	Simulated            bool       `json:"simulated,omitempty"`
}

// VisibleTo applies the shared visibility rule: mechanics see alerts
// assigned to them, admins see all.
func (a Alert) VisibleTo(p access.Principal) bool {
	return p.CanSee(a.AssignedMechanicID)
}

// HistoryEntry is the record of one alert occurrence. It starts as a copy
// of the alert at creation and follows it through acknowledge and resolve.
type HistoryEntry struct {
	HistoryID string `json:"history_id"`
	Alert
}

// Mechanic is a roster member.
type Mechanic struct {
	ID             string `json:"id" yaml:"id" validate:"required"`
	Name           string `json:"name" yaml:"name" validate:"required"`
	Phone          string `json:"phone" yaml:"phone"`
	Specialization string `json:"specialization" yaml:"specialization"`
}

// DefaultRoster is the stock mechanic roster.
func DefaultRoster() []Mechanic {
	return []Mechanic{
		{ID: "M001", Name: "John Smith", Phone: "+1-555-0101", Specialization: "Pipe Leaks"},
		{ID: "M002", Name: "Jane Doe", Phone: "+1-555-0102", Specialization: "Valve Maintenance"},
		{ID: "M003", Name: "Robert Johnson", Phone: "+1-555-0103", Specialization: "Sensor Calibration"},
	}
}

// Changes lists what one evaluation did.
type Changes struct {
	Created  []Alert
	Resolved []Alert
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return len(c.Created) > 0 || len(c.Resolved) > 0
}

func timePtr(t time.Time) *time.Time {
	return &t
}
