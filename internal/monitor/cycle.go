package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orbitvpn/sentinel/internal/metrics"
	"github.com/orbitvpn/sentinel/internal/model"
	"github.com/orbitvpn/sentinel/internal/panel"
)

// checkAllServices runs one full reconciliation pass: group active services
// by panel, process every panel in parallel, then flush the staged usage
// counters in a single bulk write.
func (m *Monitor) checkAllServices(ctx context.Context) error {
	start := m.nowFunc()

	services, err := m.store.GetAllActiveServices()
	if err != nil {
		return fmt.Errorf("monitor list active services: %w", err)
	}

	byPanel := make(map[int64][]model.Service)
	for _, svc := range services {
		byPanel[svc.PanelID] = append(byPanel[svc.PanelID], svc)
	}

	var wg sync.WaitGroup
	for panelID, group := range byPanel {
		wg.Add(1)
		go func(panelID int64, group []model.Service) {
			defer wg.Done()
			m.processPanel(ctx, panelID, group)
		}(panelID, group)
	}
	wg.Wait()

	// One bulk write for the whole cycle. A failed flush drops this
	// cycle's counters; the next pass re-reads live usage anyway.
	updates := m.buffer.Drain()
	if err := m.store.BulkUpdateCounters(updates); err != nil {
		log.Printf("[monitor] counter flush failed, dropping %d updates: %v", len(updates), err)
	}

	elapsed := m.nowFunc().Sub(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	log.Printf("[monitor] pass done: %d services across %d panels in %s",
		len(services), len(byPanel), elapsed.Round(time.Millisecond))
	return nil
}

// processPanel reconciles all services of one panel. Login or listing
// failures skip the panel for this cycle only.
func (m *Monitor) processPanel(ctx context.Context, panelID int64, services []model.Service) {
	client, ok := m.panels.Get(panelID)
	if !ok {
		log.Printf("[monitor] panel %d not registered, skipping %d services", panelID, len(services))
		return
	}
	if err := client.Login(ctx); err != nil {
		log.Printf("[monitor] panel %d login failed, skipping cycle: %v", panelID, err)
		metrics.PanelErrors.WithLabelValues(fmt.Sprint(panelID)).Inc()
		return
	}

	index, err := client.ListAllClients(ctx)
	if err != nil {
		log.Printf("[monitor] panel %d batch listing failed, per-service fallback: %v", panelID, err)
		metrics.PanelErrors.WithLabelValues(fmt.Sprint(panelID)).Inc()
		index = nil
	} else if len(index) == 0 {
		log.Printf("[monitor] panel %d batch listing empty, per-service fallback", panelID)
	}

	sem := make(chan struct{}, m.cfg.ServiceWorkers)
	var wg sync.WaitGroup
	for i := range services {
		svc := services[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			m.checkService(ctx, client, &svc, index)
		}()
	}
	wg.Wait()
}

// checkService resolves live usage for one service and applies the evaluator
// verdict. Batch data is preferred; a missing or zero-usage entry triggers a
// direct detail call.
func (m *Monitor) checkService(ctx context.Context, client panel.Client, svc *model.Service, index map[string]panel.ClientUsage) {
	usage, ok := index[svc.ClientUUID]
	if !ok || usage.UsedBytes == 0 {
		detail, err := client.ClientDetail(ctx, svc.InboundID, svc.ClientUUID)
		switch {
		case err == nil:
			usage = detail
		case errors.Is(err, panel.ErrClientNotFound) && !ok:
			log.Printf("[monitor] service %d: client %s missing on panel %d", svc.ID, svc.ClientUUID, svc.PanelID)
			metrics.ServicesChecked.WithLabelValues("skipped").Inc()
			return
		case !ok:
			log.Printf("[monitor] service %d: detail fetch failed: %v", svc.ID, err)
			metrics.ServicesChecked.WithLabelValues("error").Inc()
			return
		default:
			// Batch entry exists with zero usage and the detail probe
			// failed; trust the batch numbers.
		}
	}

	if usage.InboundID != 0 && usage.InboundID != svc.InboundID {
		if err := m.store.UpdateInboundID(svc.ID, usage.InboundID); err != nil {
			log.Printf("[monitor] service %d: update inbound: %v", svc.ID, err)
		} else {
			svc.InboundID = usage.InboundID
		}
	}

	m.buffer.Stage(svc.ID, BytesToGB(usage.UsedBytes))

	actions := Evaluate(svc, usage, m.nowFunc())
	m.applyActions(ctx, svc, usage, actions)
	metrics.ServicesChecked.WithLabelValues("ok").Inc()
}
