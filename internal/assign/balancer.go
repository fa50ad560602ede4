// Package assign distributes leak alerts across the mechanic roster.
package assign

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownMechanic is returned when a mechanic id is not on the roster.
var ErrUnknownMechanic = errors.New("unknown mechanic")

// PickMechanic returns the roster member with the lowest load. Ties go to
// the earliest entry in roster order. It returns false only for an empty
// roster.
func PickMechanic(roster []string, load map[string]int) (string, bool) {
	if len(roster) == 0 {
		return "", false
	}
	best := roster[0]
	for _, id := range roster[1:] {
		if load[id] < load[best] {
			best = id
		}
	}
	return best, true
}

// Assignment is one leak held by a mechanic.
type Assignment struct {
	LeakID     string    `json:"leak_id"`
	Label      string    `json:"pipe_name"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Balancer tracks which mechanic holds which leak. It is safe for
// concurrent use.
type Balancer struct {
	mu     sync.Mutex
	roster []string
	held   map[string][]Assignment // mechanic -> assignments in order
	owner  map[string]string       // leak -> mechanic
	now    func() time.Time
}

// NewBalancer creates a balancer for the given roster order.
func NewBalancer(roster []string) *Balancer {
	b := &Balancer{
		roster: append([]string{}, roster...),
		held:   make(map[string][]Assignment, len(roster)),
		owner:  make(map[string]string),
		now:    time.Now,
	}
	for _, id := range roster {
		b.held[id] = nil
	}
	return b
}

// Roster returns the mechanic ids in roster order.
func (b *Balancer) Roster() []string {
	return append([]string{}, b.roster...)
}

// Assign gives leakID to the least-loaded mechanic. A leak that is already
// assigned keeps its mechanic and is not counted twice.
func (b *Balancer) Assign(leakID, label string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.owner[leakID]; ok {
		return id, true
	}
	id, ok := PickMechanic(b.roster, b.loadsLocked())
	if !ok {
		return "", false
	}
	b.addLocked(id, leakID, label)
	return id, true
}

// Unassign releases leakID from its mechanic. It returns false if the leak
// was not assigned.
func (b *Balancer) Unassign(leakID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(leakID)
}

// Reassign moves leakID to mechanicID regardless of load. It returns the
// previous mechanic, or "" if the leak was unassigned.
func (b *Balancer) Reassign(leakID, mechanicID, label string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.held[mechanicID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMechanic, mechanicID)
	}
	prev, _ := b.removeLocked(leakID)
	b.addLocked(mechanicID, leakID, label)
	return prev, nil
}

// Load returns the number of leaks held by a mechanic.
func (b *Balancer) Load(mechanicID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held[mechanicID])
}

// Loads returns the load of every roster member.
func (b *Balancer) Loads() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadsLocked()
}

// AssignedTo returns a copy of a mechanic's assignments in the order they
// were made.
func (b *Balancer) AssignedTo(mechanicID string) []Assignment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Assignment{}, b.held[mechanicID]...)
}

// MechanicFor returns the mechanic holding leakID.
func (b *Balancer) MechanicFor(leakID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.owner[leakID]
	return id, ok
}

// Reset drops every assignment.
func (b *Balancer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.held {
		b.held[id] = nil
	}
	b.owner = make(map[string]string)
}

func (b *Balancer) loadsLocked() map[string]int {
	out := make(map[string]int, len(b.held))
	for id, list := range b.held {
		out[id] = len(list)
	}
	return out
}

func (b *Balancer) addLocked(mechanicID, leakID, label string) {
	b.held[mechanicID] = append(b.held[mechanicID], Assignment{
		LeakID:     leakID,
		Label:      label,
		AssignedAt: b.now(),
	})
	b.owner[leakID] = mechanicID
}

func (b *Balancer) removeLocked(leakID string) (string, bool) {
	id, ok := b.owner[leakID]
	if !ok {
		return "", false
	}
	delete(b.owner, leakID)
	list := b.held[id]
	for i, a := range list {
		if a.LeakID == leakID {
			b.held[id] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return id, true
}
