package monitor

import (
	"context"
	"log"

	"github.com/orbitvpn/sentinel/internal/metrics"
)

// sweepGracePeriod deletes every disabled service whose grace-period anchor
// is at least the grace window old. Terminal path for services that neither
// renewed nor breached overage limits during the window.
func (m *Monitor) sweepGracePeriod(ctx context.Context) {
	volume, err := m.store.ServicesPastGracePeriod(m.cfg.GracePeriod)
	if err != nil {
		log.Printf("[monitor] grace sweep (volume) query failed: %v", err)
	}
	plans, err := m.store.ExpiredPlanServicesPastGracePeriod(m.cfg.GracePeriod)
	if err != nil {
		log.Printf("[monitor] grace sweep (plan) query failed: %v", err)
	}

	due := append(volume, plans...)
	for i := range due {
		svc := due[i]
		m.deleteService(ctx, &svc, "grace period elapsed", graceDeletedText(&svc))
		metrics.Transitions.WithLabelValues("grace_delete").Inc()
	}
	if len(due) > 0 {
		log.Printf("[monitor] grace sweep removed %d services", len(due))
	}
}
