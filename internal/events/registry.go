package events

import "fmt"

var allowedTypes = map[string]struct{}{
	// stream
	TypeConnected: {},
	TypePing:      {},

	// state
	TypeSystemUpdate: {},

	// alerts
	TypeAlertAcknowledged: {},
	TypeAlertsResolved:    {},
	TypeLeakDetected:      {},
	TypeLeakResolved:      {},

	// mechanic
	TypeMechanicUpdate: {},
}

var allowedNotices = map[string]struct{}{
	NoticeNewAssignment:      {},
	NoticeAssignmentResolved: {},
	NoticeAssignmentRemoved:  {},
	NoticeAlertAcknowledged:  {},
}

// Validate checks a message against the known types. A mechanic_update
// must name its mechanic and carry a known notice type.
func Validate(m Message) error {
	if _, ok := allowedTypes[m.Type]; !ok {
		return fmt.Errorf("unknown message type: %s", m.Type)
	}
	if m.Type != TypeMechanicUpdate {
		return nil
	}
	if m.MechanicID == "" {
		return fmt.Errorf("mechanic_update without mechanic id")
	}
	n, ok := m.Data.(MechanicNotice)
	if !ok {
		return fmt.Errorf("mechanic_update without notice")
	}
	if _, ok := allowedNotices[n.Type]; !ok {
		return fmt.Errorf("unknown mechanic notice: %s", n.Type)
	}
	return nil
}
