package events

import "time"

// Message types of the live stream.
const (
	TypeConnected         = "connected"
	TypePing              = "ping"
	TypeSystemUpdate      = "system_update"
	TypeAlertAcknowledged = "alert_acknowledged"
	TypeAlertsResolved    = "alerts_resolved"
	TypeLeakDetected      = "leak_detected"
	TypeLeakResolved      = "leak_resolved"
	TypeMechanicUpdate    = "mechanic_update"
)

// Nested types carried inside a mechanic_update.
const (
	NoticeNewAssignment      = "new_assignment"
	NoticeAssignmentResolved = "assignment_resolved"
	NoticeAssignmentRemoved  = "assignment_removed"
	NoticeAlertAcknowledged  = "alert_acknowledged"
)

// Message is one live stream envelope.
type Message struct {
	Type           string `json:"type"`
	AlertID        string `json:"alert_id,omitempty"`
	AcknowledgedBy string `json:"acknowledged_by,omitempty"`
	MechanicID     string `json:"mechanic_id,omitempty"`
	Data           any    `json:"data,omitempty"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"ts"`
}

// MechanicNotice is the data of a mechanic_update.
type MechanicNotice struct {
	Type    string `json:"type"`
	Alert   any    `json:"alert,omitempty"`
	Message string `json:"message,omitempty"`
}

func stamp(m Message) Message {
	m.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return m
}

// Connected greets a new subscriber.
func Connected(msg string) Message {
	return stamp(Message{Type: TypeConnected, Message: msg})
}

// Ping is the keepalive message.
func Ping() Message {
	return stamp(Message{Type: TypePing})
}

// SystemUpdate carries the processed network and alert view.
func SystemUpdate(data any) Message {
	return stamp(Message{Type: TypeSystemUpdate, Data: data})
}

// AlertAcknowledged announces an acknowledgement.
func AlertAcknowledged(alertID, by string) Message {
	return stamp(Message{Type: TypeAlertAcknowledged, AlertID: alertID, AcknowledgedBy: by})
}

// AlertsResolved announces a bulk resolution.
func AlertsResolved(data any) Message {
	return stamp(Message{Type: TypeAlertsResolved, Data: data})
}

// LeakDetected announces a new leak alert.
func LeakDetected(alert any) Message {
	return stamp(Message{Type: TypeLeakDetected, Data: alert})
}

// LeakResolved announces a cleared leak alert.
func LeakResolved(alert any) Message {
	return stamp(Message{Type: TypeLeakResolved, Data: alert})
}

// MechanicUpdate is a notice scoped to one mechanic.
func MechanicUpdate(mechanicID string, notice MechanicNotice) Message {
	return stamp(Message{Type: TypeMechanicUpdate, MechanicID: mechanicID, Data: notice})
}
