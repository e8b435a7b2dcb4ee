package offline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Probe is a lightweight reachability check.
type Probe interface {
	Check(ctx context.Context) error
}

type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// Monitor polls a probe and replays the queue whenever connectivity comes
// back. The device is treated as offline until the first successful probe.
type Monitor struct {
	probe        Probe
	queue        *Queue
	applier      Applier
	logger       *slog.Logger
	interval     time.Duration
	probeTimeout time.Duration

	online atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewMonitor(probe Probe, queue *Queue, applier Applier, interval, probeTimeout time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		probe:        probe,
		queue:        queue,
		applier:      applier,
		logger:       logger,
		interval:     interval,
		probeTimeout: probeTimeout,
		stop:         make(chan struct{}),
	}
}

func (m *Monitor) Online() bool { return m.online.Load() }

// MarkOffline records a connectivity loss seen outside the poll loop.
func (m *Monitor) MarkOffline() {
	if m.online.Swap(false) {
		m.logger.Warn("connectivity lost")
	}
}

// Start runs the poll loop until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Poll(ctx)

		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				m.Poll(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Poll runs one probe and replays on an offline to online transition.
func (m *Monitor) Poll(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.probe.Check(pctx)
	cancel()

	if err != nil {
		m.MarkOffline()
		return
	}
	if m.online.Swap(true) {
		return
	}

	m.logger.Info("connectivity restored, replaying offline actions")
	if _, err := m.queue.ReplayAll(ctx, m.applier); err != nil {
		m.logger.Error("offline replay", "err", err)
	}
}
