package alerts

import (
	"context"
	"sort"
)

// DefaultRestoreLimit is the default number of history entries loaded at
// startup.
const DefaultRestoreLimit = 500

// ResolvedByRestart marks history entries that were still open when the
// previous process stopped.
const ResolvedByRestart = "restart"

// HistorySource loads persisted history, newest first.
type HistorySource interface {
	LoadHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// RestoreHistory seeds the in-memory history from src. Entries left open
// by the previous process are closed as resolved by "restart" and saved
// back to the sink; a condition that still holds is re-detected from the
// store on the next poll as a new occurrence. Alerts are never reopened.
// Entries already present are skipped. It returns the number of entries
// added.
func (m *Manager) RestoreHistory(ctx context.Context, src HistorySource, limit int) (int, error) {
	if src == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := src.LoadHistory(ctx, limit)
	if err != nil {
		return 0, err
	}

	// Chronological order.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})

	var fx effects
	m.mu.Lock()

	seen := make(map[string]bool, len(m.history))
	for _, h := range m.history {
		seen[h.HistoryID] = true
	}

	restored := make([]*HistoryEntry, 0, len(rows))
	for _, row := range rows {
		if row.HistoryID == "" || seen[row.HistoryID] {
			continue
		}
		seen[row.HistoryID] = true
		h := row
		if !h.Resolved {
			h.Resolved = true
			h.ResolvedAt = timePtr(m.now())
			h.ResolvedBy = ResolvedByRestart
			h.Status = StatusResolved
			fx.saves = append(fx.saves, h)
		}
		restored = append(restored, &h)
	}
	m.history = append(restored, m.history...)
	m.mu.Unlock()

	m.apply(fx)
	return len(restored), nil
}
