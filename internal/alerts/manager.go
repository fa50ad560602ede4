package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/assign"
	"github.com/AaronLay10/watermon/internal/events"
	"github.com/AaronLay10/watermon/internal/metrics"
	"github.com/AaronLay10/watermon/internal/network"
	"github.com/AaronLay10/watermon/internal/store"
)

// sinkTimeout bounds one history write.
const sinkTimeout = 2 * time.Second

// Notifier receives live messages. events.Hub implements it.
type Notifier interface {
	Broadcast(m events.Message) error
}

// HistorySink persists history entries. Saves are upserts keyed by
// HistoryID.
type HistorySink interface {
	SaveHistory(ctx context.Context, e HistoryEntry) error
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Threshold int
	Topology  *network.Topology
	Notifier  Notifier
	Sink      HistorySink
	Metrics   *metrics.Registry
	Now       func() time.Time
}

// Manager owns the active alert set and the alert history. It never
// mutates network state. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	roster   []Mechanic
	byID     map[string]Mechanic
	balancer *assign.Balancer
	active   []*Alert
	history  []*HistoryEntry
	last     store.Snapshot

	threshold int
	topo      *network.Topology
	notifier  Notifier
	sink      HistorySink
	metrics   *metrics.Registry
	now       func() time.Time

	sinkMu      sync.Mutex
	sinkFailing bool
}

// effects are side effects collected under the lock and run after it.
type effects struct {
	messages []events.Message
	saves    []HistoryEntry
}

// NewManager creates a manager for the given roster. The balancer must
// have been created with the same roster order.
func NewManager(roster []Mechanic, balancer *assign.Balancer, opts Options) *Manager {
	m := &Manager{
		roster:    append([]Mechanic{}, roster...),
		byID:      make(map[string]Mechanic, len(roster)),
		balancer:  balancer,
		last:      store.Empty(),
		threshold: opts.Threshold,
		topo:      opts.Topology,
		notifier:  opts.Notifier,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	for _, mech := range roster {
		m.byID[mech.ID] = mech
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.topo == nil {
		m.topo = network.DefaultTopology()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Threshold returns the low water level threshold in percent.
func (m *Manager) Threshold() int {
	return m.threshold
}

// Evaluate drives every transition implied by a store snapshot: leaks
// that became active get an alert and a mechanic, leaks reported inactive
// are resolved, and the water level alert follows the threshold.
// Conditions that already have an alert are left alone.
func (m *Manager) Evaluate(snap store.Snapshot) Changes {
	changes, fx := m.evaluate(snap)

	for _, a := range changes.Created {
		if a.AssignedMechanicID != "" {
			log.Printf("alerts: new %s alert %s assigned to %s", a.Kind, a.ID, a.AssignedMechanicName)
		} else {
			log.Printf("alerts: new %s alert %s", a.Kind, a.ID)
		}
	}
	for _, a := range changes.Resolved {
		log.Printf("alerts: %s resolved", a.ID)
	}
	m.apply(fx)
	return changes
}

func (m *Manager) evaluate(snap store.Snapshot) (Changes, effects) {
	var changes Changes
	var fx effects

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = snap

	pipes := make([]string, 0, len(snap.ActiveLeaks))
	for pipe := range snap.ActiveLeaks {
		pipes = append(pipes, pipe)
	}
	sort.Strings(pipes)

	for _, pipe := range pipes {
		id := LeakID(pipe)
		_, exists := m.findLocked(id)
		switch {
		case snap.ActiveLeaks[pipe] && !exists:
			a := m.createLeakLocked(pipe, false, &fx)
			changes.Created = append(changes.Created, *a)
		case !snap.ActiveLeaks[pipe] && exists:
			a := m.resolveLocked(id, "", &fx)
			changes.Resolved = append(changes.Resolved, *a)
		}
	}

	_, lowExists := m.findLocked(LowWaterID)
	switch {
	case snap.WaterLevel < m.threshold && !lowExists:
		a := m.createLowWaterLocked(snap.WaterLevel, &fx)
		changes.Created = append(changes.Created, *a)
	case snap.WaterLevel >= m.threshold && lowExists:
		a := m.resolveLocked(LowWaterID, "", &fx)
		changes.Resolved = append(changes.Resolved, *a)
	}

	m.recordGaugesLocked()
	return changes, fx
}

// Acknowledge marks an alert acknowledged by p. Mechanics may only
// acknowledge alerts assigned to them.
func (m *Manager) Acknowledge(p access.Principal, alertID string) (Alert, error) {
	var fx effects

	m.mu.Lock()
	i, ok := m.findLocked(alertID)
	if !ok {
		m.mu.Unlock()
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}
	a := m.active[i]
	if !a.VisibleTo(p) {
		m.mu.Unlock()
		return Alert{}, fmt.Errorf("%w: %s is not assigned to you", ErrForbidden, alertID)
	}

	at := m.now()
	by := actorName(p)
	a.Acknowledged = true
	a.AcknowledgedAt = timePtr(at)
	a.AcknowledgedBy = by
	a.Status = StatusAcknowledged
	if h := m.openHistoryLocked(alertID); h != nil {
		h.Acknowledged = true
		h.AcknowledgedAt = timePtr(at)
		h.AcknowledgedBy = by
		h.Status = StatusAcknowledged
		fx.saves = append(fx.saves, *h)
	}

	ack := events.AlertAcknowledged(alertID, by)
	ack.Data = m.viewLocked(access.Admin(""))
	fx.messages = append(fx.messages, ack)
	if a.AssignedMechanicID != "" {
		fx.messages = append(fx.messages, events.MechanicUpdate(a.AssignedMechanicID, events.MechanicNotice{
			Type:  events.NoticeAlertAcknowledged,
			Alert: *a,
		}))
	}
	out := *a
	m.metrics.AlertTransition(string(a.Kind), "acknowledged")
	m.mu.Unlock()

	m.apply(fx)
	return out, nil
}

// ResolveAll resolves every active alert and clears all assignments.
// Admin only. It returns the number of alerts resolved.
func (m *Manager) ResolveAll(p access.Principal) (int, error) {
	if !p.IsAdmin() {
		return 0, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	var fx effects

	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for _, a := range m.active {
		ids = append(ids, a.ID)
	}
	for _, id := range ids {
		m.resolveLocked(id, actorName(p), &fx)
	}
	m.balancer.Reset()
	fx.messages = append(fx.messages, events.AlertsResolved(m.viewLocked(access.Admin(""))))
	m.recordGaugesLocked()
	m.mu.Unlock()

	log.Printf("alerts: %d alerts resolved by %s", len(ids), actorName(p))
	m.apply(fx)
	return len(ids), nil
}

// Reassignment reports a manual assignment.
type Reassignment struct {
	Alert       Alert  `json:"alert"`
	OldMechanic string `json:"old_mechanic,omitempty"`
	NewMechanic string `json:"new_mechanic"`
}

// Assign hands a leak alert to a specific mechanic, bypassing the
// balancer. Admin only.
func (m *Manager) Assign(p access.Principal, alertID, mechanicID string) (Reassignment, error) {
	if !p.IsAdmin() {
		return Reassignment{}, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	var fx effects

	m.mu.Lock()
	i, ok := m.findLocked(alertID)
	if !ok {
		m.mu.Unlock()
		return Reassignment{}, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}
	a := m.active[i]
	if a.Kind != KindLeak {
		m.mu.Unlock()
		return Reassignment{}, fmt.Errorf("%w: %s", ErrNotLeak, alertID)
	}
	mech, ok := m.byID[mechanicID]
	if !ok {
		m.mu.Unlock()
		return Reassignment{}, fmt.Errorf("%w: %s", ErrUnknownMechanic, mechanicID)
	}
	old, err := m.balancer.Reassign(alertID, mechanicID, a.PipeName)
	if err != nil {
		m.mu.Unlock()
		return Reassignment{}, fmt.Errorf("%w: %s", ErrUnknownMechanic, mechanicID)
	}

	a.AssignedMechanicID = mech.ID
	a.AssignedMechanicName = mech.Name
	a.Status = StatusReassigned
	if h := m.openHistoryLocked(alertID); h != nil {
		h.AssignedMechanicID = mech.ID
		h.AssignedMechanicName = mech.Name
		h.Status = StatusReassigned
		fx.saves = append(fx.saves, *h)
	}

	if old != "" && old != mech.ID {
		fx.messages = append(fx.messages, events.MechanicUpdate(old, events.MechanicNotice{
			Type:  events.NoticeAssignmentRemoved,
			Alert: *a,
		}))
	}
	fx.messages = append(fx.messages,
		events.MechanicUpdate(mech.ID, events.MechanicNotice{
			Type:    events.NoticeNewAssignment,
			Alert:   *a,
			Message: "Leak reassigned to " + mech.Name,
		}),
		events.SystemUpdate(m.viewLocked(access.Admin(""))),
	)
	out := Reassignment{Alert: *a, OldMechanic: old, NewMechanic: mech.ID}
	m.metrics.AlertTransition(string(a.Kind), "reassigned")
	m.recordGaugesLocked()
	m.mu.Unlock()

	log.Printf("alerts: %s reassigned from %q to %s", alertID, old, mech.ID)
	m.apply(fx)
	return out, nil
}

// Simulate creates (active) or clears (!active) a simulated leak alert on
// a pipe. Admin only; callers gate it behind development mode.
func (m *Manager) Simulate(p access.Principal, pipeID string, active bool) (Alert, error) {
	if !p.IsAdmin() {
		return Alert{}, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	if _, ok := m.topo.Segment(network.SegmentID(pipeID)); !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrUnknownPipe, pipeID)
	}
	id := LeakID(pipeID)
	var fx effects
	var out Alert

	m.mu.Lock()
	if active {
		if _, exists := m.findLocked(id); exists {
			m.resolveLocked(id, actorName(p), &fx)
		}
		a := m.createLeakLocked(pipeID, true, &fx)
		out = *a
		fx.messages = append(fx.messages, events.LeakDetected(m.viewLocked(access.Admin(""))))
	} else {
		if _, exists := m.findLocked(id); !exists {
			m.mu.Unlock()
			return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		out = *m.resolveLocked(id, actorName(p), &fx)
		fx.messages = append(fx.messages, events.LeakResolved(m.viewLocked(access.Admin(""))))
	}
	m.recordGaugesLocked()
	m.mu.Unlock()

	m.apply(fx)
	return out, nil
}

// Active returns the active alerts p may see, oldest first.
func (m *Manager) Active(p access.Principal) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(p)
}

// History returns the newest n history entries p may see, oldest first,
// and the total number visible. n <= 0 uses DefaultHistoryLimit.
func (m *Manager) History(p access.Principal, n int) ([]HistoryEntry, int) {
	if n <= 0 {
		n = DefaultHistoryLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var visible []HistoryEntry
	for _, h := range m.history {
		if h.VisibleTo(p) {
			visible = append(visible, *h)
		}
	}
	total := len(visible)
	if len(visible) > n {
		visible = visible[len(visible)-n:]
	}
	return visible, total
}

// MechanicSummary is a roster member with their current workload.
type MechanicSummary struct {
	Mechanic
	AssignedLeaksCount int                 `json:"assigned_leaks_count"`
	AssignedLeaks      []assign.Assignment `json:"assigned_leaks"`
}

// Mechanics returns the roster with current workloads, in roster order.
func (m *Manager) Mechanics() []MechanicSummary {
	out := make([]MechanicSummary, 0, len(m.roster))
	for _, mech := range m.roster {
		held := m.balancer.AssignedTo(mech.ID)
		out = append(out, MechanicSummary{
			Mechanic:           mech,
			AssignedLeaksCount: len(held),
			AssignedLeaks:      held,
		})
	}
	return out
}

// Mechanic looks up a roster member.
func (m *Manager) Mechanic(id string) (Mechanic, bool) {
	mech, ok := m.byID[id]
	return mech, ok
}

// Roster returns the roster in order.
func (m *Manager) Roster() []Mechanic {
	return append([]Mechanic{}, m.roster...)
}

func (m *Manager) activeLocked(p access.Principal) []Alert {
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		if a.VisibleTo(p) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *Manager) findLocked(id string) (int, bool) {
	for i, a := range m.active {
		if a.ID == id {
			return i, true
		}
	}
	return -1, false
}

// openHistoryLocked returns the newest unresolved history entry for id.
func (m *Manager) openHistoryLocked(id string) *HistoryEntry {
	for i := len(m.history) - 1; i >= 0; i-- {
		if h := m.history[i]; h.ID == id && !h.Resolved {
			return h
		}
	}
	return nil
}

func (m *Manager) createLeakLocked(pipe string, simulated bool, fx *effects) *Alert {
	id := LeakID(pipe)
	name := network.PipeName(pipe)
	a := &Alert{
		ID:        id,
		Kind:      KindLeak,
		Severity:  SeverityHigh,
		Title:     "ACTIVE LEAK DETECTED",
		Message:   "Leak detected in: " + name,
		PipeID:    pipe,
		PipeName:  name,
		CreatedAt: m.now(),
		Status:    StatusUnassigned,
		Simulated: simulated,
	}
	if simulated {
		a.Title = "SIMULATED LEAK DETECTED"
		a.Message = "Simulated leak in: " + name
	}
	if mechID, ok := m.balancer.Assign(id, name); ok {
		a.AssignedMechanicID = mechID
		a.AssignedMechanicName = m.byID[mechID].Name
		a.Status = StatusAssigned
		fx.messages = append(fx.messages, events.MechanicUpdate(mechID, events.MechanicNotice{
			Type:  events.NoticeNewAssignment,
			Alert: *a,
		}))
	}
	m.addLocked(a, fx)
	return a
}

func (m *Manager) createLowWaterLocked(level int, fx *effects) *Alert {
	a := &Alert{
		ID:        LowWaterID,
		Kind:      KindWaterLevel,
		Severity:  SeverityMedium,
		Title:     "LOW WATER LEVEL",
		Message:   fmt.Sprintf("Water level is critically low: %d%%", level),
		Level:     &level,
		CreatedAt: m.now(),
		Status:    StatusUnassigned,
	}
	m.addLocked(a, fx)
	return a
}

func (m *Manager) addLocked(a *Alert, fx *effects) {
	m.active = append(m.active, a)
	h := &HistoryEntry{HistoryID: uuid.NewString(), Alert: *a}
	m.history = append(m.history, h)
	fx.saves = append(fx.saves, *h)
	m.metrics.AlertTransition(string(a.Kind), "created")
}

// resolveLocked removes an active alert, closes its history entry, and
// releases its mechanic. by is empty when the condition cleared on its
// own.
func (m *Manager) resolveLocked(id, by string, fx *effects) *Alert {
	i, ok := m.findLocked(id)
	if !ok {
		return nil
	}
	a := m.active[i]
	m.active = append(m.active[:i], m.active[i+1:]...)

	at := m.now()
	a.Resolved = true
	a.ResolvedAt = timePtr(at)
	a.ResolvedBy = by
	a.Status = StatusResolved
	if h := m.openHistoryLocked(id); h != nil {
		h.Resolved = true
		h.ResolvedAt = timePtr(at)
		h.ResolvedBy = by
		h.Status = StatusResolved
		fx.saves = append(fx.saves, *h)
	}

	if a.Kind == KindLeak {
		if mechID, ok := m.balancer.Unassign(id); ok {
			fx.messages = append(fx.messages, events.MechanicUpdate(mechID, events.MechanicNotice{
				Type:  events.NoticeAssignmentResolved,
				Alert: *a,
			}))
		}
	}
	m.metrics.AlertTransition(string(a.Kind), "resolved")
	return a
}

func (m *Manager) recordGaugesLocked() {
	if m.metrics == nil {
		return
	}
	counts := map[Kind]int{KindLeak: 0, KindWaterLevel: 0}
	for _, a := range m.active {
		counts[a.Kind]++
	}
	for kind, n := range counts {
		m.metrics.SetActiveAlerts(string(kind), n)
	}
	m.metrics.SetMechanicLoads(m.balancer.Loads())
}

// apply runs collected side effects outside the lock. Failures are logged
// and never returned.
func (m *Manager) apply(fx effects) {
	if m.notifier != nil {
		for _, msg := range fx.messages {
			if err := m.notifier.Broadcast(msg); err != nil {
				log.Printf("alerts: broadcast %s failed: %v", msg.Type, err)
			}
		}
	}
	if m.sink == nil {
		return
	}
	for _, h := range fx.saves {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := m.sink.SaveHistory(ctx, h)
		cancel()
		m.sinkResult(err)
	}
}

// sinkResult logs the first failure of a streak and the recovery.
func (m *Manager) sinkResult(err error) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	if err != nil {
		m.metrics.HistorySinkFailed()
		if !m.sinkFailing {
			m.sinkFailing = true
			log.Printf("alerts: history sink failed, continuing in memory: %v", err)
		}
		return
	}
	if m.sinkFailing {
		m.sinkFailing = false
		log.Printf("alerts: history sink recovered")
	}
}

func actorName(p access.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	if p.IsAdmin() {
		return "Admin"
	}
	return p.MechanicID
}
