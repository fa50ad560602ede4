package network

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/AaronLay10/watermon/internal/store"
)

// DefaultPublishTimeout bounds one full publish of all sections.
const DefaultPublishTimeout = 5 * time.Second

// StorePublisher writes every snapshot section to a shared store.
// Failures are logged, never returned; after the first failure further
// failures are suppressed until a publish succeeds. The last snapshot that
// failed is kept until Flush or a later publish delivers newer state.
type StorePublisher struct {
	store   store.Store
	timeout time.Duration

	pushMu sync.Mutex

	mu       sync.Mutex
	failing  bool
	failures int
	pushes   int
	pending  *FlowSnapshot
}

// NewStorePublisher creates a publisher for the given store.
func NewStorePublisher(s store.Store) *StorePublisher {
	return &StorePublisher{store: s, timeout: DefaultPublishTimeout}
}

// Publish pushes the snapshot to the store, section by section.
func (p *StorePublisher) Publish(snap FlowSnapshot) {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()
	p.push(snap)
}

// Flush pushes the snapshot held back by a failed publish, if any. Call it
// once the store link is back. It reports whether the store now holds the
// latest local state.
func (p *StorePublisher) Flush() bool {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()

	p.mu.Lock()
	pending := p.pending
	p.mu.Unlock()
	if pending == nil {
		return true
	}
	return p.push(*pending)
}

// Pending reports whether a failed snapshot is waiting for Flush.
func (p *StorePublisher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func (p *StorePublisher) push(snap FlowSnapshot) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var firstErr error
	for _, section := range store.Sections {
		if err := p.store.Set(ctx, section, sectionValue(snap, section)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes++
	if firstErr != nil {
		p.failures++
		p.pending = &snap
		if !p.failing {
			p.failing = true
			log.Printf("network: store push failed, continuing offline: %v", firstErr)
		}
		return false
	}
	p.pending = nil
	if p.failing {
		p.failing = false
		log.Printf("network: store push recovered")
	}
	return true
}

// Failures returns how many publishes had at least one failed section.
func (p *StorePublisher) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func sectionValue(snap FlowSnapshot, section string) any {
	switch section {
	case store.SectionTimestamp:
		return snap.Timestamp.Format(time.RFC3339)
	case store.SectionSensors:
		return snap.Sensors
	case store.SectionWaterLevel:
		return snap.WaterLevel
	case store.SectionValves:
		return store.Flags(snap.Valves)
	case store.SectionTaps:
		return store.Flags(snap.Taps)
	case store.SectionLeaks:
		return segmentFlags(snap, func(s SegmentState) bool { return s.HasLeak })
	case store.SectionWaterFlow:
		return segmentFlags(snap, func(s SegmentState) bool { return s.HasFlow })
	case store.SectionActiveLeaks:
		return segmentFlags(snap, func(s SegmentState) bool { return s.IsActiveLeak })
	case store.SectionLeakReport:
		return snap.LeakReport()
	}
	return nil
}

func segmentFlags(snap FlowSnapshot, pick func(SegmentState) bool) map[string]int {
	m := make(map[SegmentID]bool, len(snap.Segments))
	for id, st := range snap.Segments {
		m[id] = pick(st)
	}
	return store.Flags(m)
}
