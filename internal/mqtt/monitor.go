package mqtt

import (
	"log"
	"sync"
	"time"
)

// LinkState is the observed broker connection state.
type LinkState struct {
	Connected bool
	Since     time.Time
	Drops     int
}

// connChecker reports broker connectivity.
type connChecker interface {
	IsConnected() bool
}

// Monitor watches the broker link and reports transitions.
type Monitor struct {
	mu       sync.RWMutex
	link     connChecker
	state    LinkState
	onChange func(connected bool)
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a link monitor. onChange is called on every
// connected/disconnected transition; it may be nil.
func NewMonitor(link connChecker, onChange func(connected bool)) *Monitor {
	return &Monitor{
		link:     link,
		onChange: onChange,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start takes an initial reading and begins the background check loop.
func (m *Monitor) Start(interval time.Duration) {
	m.check()
	m.wg.Add(1)
	go m.loop(interval)
}

// Stop stops the background check loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) loop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	connected := m.link.IsConnected()

	m.mu.Lock()
	first := m.state.Since.IsZero()
	changed := first || connected != m.state.Connected
	if changed {
		if !first && !connected {
			m.state.Drops++
		}
		m.state.Connected = connected
		m.state.Since = m.now()
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	if !first {
		if connected {
			log.Printf("mqtt: broker link restored")
		} else {
			log.Printf("mqtt: broker link down, store reads fall back to last-known state")
		}
	}
	if m.onChange != nil {
		m.onChange(connected)
	}
}

// State returns a copy of the current link state.
func (m *Monitor) State() LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
