package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/events"
	"github.com/AaronLay10/watermon/internal/metrics"
	"github.com/AaronLay10/watermon/internal/store"
)

// DefaultPollInterval is how often the monitor reads the shared store.
const DefaultPollInterval = 2 * time.Second

// Monitor polls the shared store, feeds every snapshot to the Manager,
// and broadcasts a system_update whenever the store content or any alert
// changed.
type Monitor struct {
	store    store.Store
	manager  *Manager
	notifier Notifier
	interval time.Duration
	metrics  *metrics.Registry

	mu       sync.Mutex
	prev     store.Snapshot
	havePrev bool
	failing  bool
	lastPoll time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. An interval of zero uses
// DefaultPollInterval.
func NewMonitor(s store.Store, m *Manager, n Notifier, interval time.Duration, reg *metrics.Registry) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		store:    s,
		manager:  m,
		notifier: n,
		interval: interval,
		metrics:  reg,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one poll immediately and then one per interval until Stop.
func (mon *Monitor) Start() {
	mon.wg.Add(1)
	go mon.loop()
}

// Stop stops the poll loop and waits for the current iteration. It is
// safe to call more than once.
func (mon *Monitor) Stop() {
	mon.stopOnce.Do(func() { close(mon.stopCh) })
	mon.wg.Wait()
}

func (mon *Monitor) loop() {
	defer mon.wg.Done()

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	_ = mon.Poll()
	for {
		select {
		case <-mon.stopCh:
			return
		case <-ticker.C:
			_ = mon.Poll()
		}
	}
}

// Poll runs one iteration. Errors and panics are logged and returned;
// they never stop the loop.
func (mon *Monitor) Poll() (err error) {
	start := time.Now()
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			log.Printf("alerts: poll panic: %v", r)
			err = fmt.Errorf("poll panic: %v", r)
			result = "panic"
		}
		mon.metrics.PollFinished(result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), mon.interval)
	defer cancel()

	snap, err := mon.store.Get(ctx)
	mon.storeResult(err)
	if err != nil {
		result = "error"
		return fmt.Errorf("store get: %w", err)
	}

	changes := mon.manager.Evaluate(snap)

	mon.mu.Lock()
	changed := !mon.havePrev || !snap.Equal(mon.prev) || changes.Any()
	mon.prev = snap
	mon.havePrev = true
	mon.lastPoll = time.Now()
	mon.mu.Unlock()

	if changed && mon.notifier != nil {
		if err := mon.notifier.Broadcast(events.SystemUpdate(mon.manager.View(access.Admin("")))); err != nil {
			log.Printf("alerts: broadcast system_update failed: %v", err)
		}
	}
	return nil
}

// storeResult logs the first store failure of a streak and the recovery.
func (mon *Monitor) storeResult(err error) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.metrics.SetStoreConnected(err == nil)
	if err != nil {
		if !mon.failing {
			mon.failing = true
			log.Printf("alerts: store read failed, keeping last-known state: %v", err)
		}
		return
	}
	if mon.failing {
		mon.failing = false
		log.Printf("alerts: store read recovered")
	}
}

// LastPoll returns when the last successful poll finished.
func (mon *Monitor) LastPoll() time.Time {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.lastPoll
}

// Healthy reports whether the last store read succeeded.
func (mon *Monitor) Healthy() bool {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.havePrev && !mon.failing
}
