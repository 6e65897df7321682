// Package monitor implements the reconciliation core: the fixed-cadence
// scheduler, per-panel batch reconciliation, the traffic/lifecycle evaluator,
// and the grace-period deletion sweep.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/orbitvpn/sentinel/internal/notify"
	"github.com/orbitvpn/sentinel/internal/panel"
	"github.com/orbitvpn/sentinel/internal/store"
)

// Config configures the Monitor.
type Config struct {
	CheckInterval  time.Duration // cadence of full reconciliation passes
	ErrorBackoff   time.Duration // sleep after a failed pass
	GracePeriod    time.Duration // disable-to-delete window
	ServiceWorkers int           // per-panel concurrent service evaluations
	ReportChatID   int64         // operational report recipient, 0 = off
}

// Monitor drives the periodic reconciliation loop. Start launches the loop;
// Stop lets the in-flight pass finish and then halts it.
type Monitor struct {
	store    *store.Store
	panels   *panel.Registry
	notifier *notify.Dispatcher
	cfg      Config

	buffer UpdateBuffer

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// nowFunc is replaceable in tests.
	nowFunc func() time.Time
}

// New creates a Monitor. Zero durations get production defaults.
func New(st *store.Store, panels *panel.Registry, notifier *notify.Dispatcher, cfg Config) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 180 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 24 * time.Hour
	}
	if cfg.ServiceWorkers <= 0 {
		cfg.ServiceWorkers = 200
	}
	return &Monitor{
		store:    st,
		panels:   panels,
		notifier: notifier,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		nowFunc:  time.Now,
	}
}

// Start launches the reconciliation loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	log.Printf("[monitor] started, interval=%s grace=%s", m.cfg.CheckInterval, m.cfg.GracePeriod)
}

// Stop halts the loop. A pass already in flight completes first.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	log.Printf("[monitor] stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		start := m.nowFunc()
		err := m.runPass(context.Background())
		elapsed := m.nowFunc().Sub(start)

		var sleep time.Duration
		if err != nil {
			log.Printf("[monitor] pass failed after %s: %v", elapsed.Round(time.Millisecond), err)
			sleep = m.cfg.ErrorBackoff
		} else {
			sleep = m.cfg.CheckInterval - elapsed
			if sleep < 0 {
				sleep = 0
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runPass executes one full reconciliation pass plus the grace sweep.
func (m *Monitor) runPass(ctx context.Context) error {
	if err := m.checkAllServices(ctx); err != nil {
		return err
	}
	m.sweepGracePeriod(ctx)
	return nil
}

// report posts a line to the operational reporting channel, best-effort.
func (m *Monitor) report(text string) {
	if m.cfg.ReportChatID == 0 {
		return
	}
	m.notifier.Enqueue(notify.Message{Recipient: m.cfg.ReportChatID, Text: text})
}
