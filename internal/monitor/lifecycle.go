package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orbitvpn/sentinel/internal/metrics"
	"github.com/orbitvpn/sentinel/internal/model"
	"github.com/orbitvpn/sentinel/internal/notify"
	"github.com/orbitvpn/sentinel/internal/panel"
)

// Warning flag names accepted by the store.
const (
	flagWarned70        = "warned_70_percent"
	flagWarned100       = "warned_100_percent"
	flagWarnedThreeDays = "warned_three_days"
	flagWarnedExpired   = "warned_expired"
)

// applyActions drives one service through the evaluator's decisions.
func (m *Monitor) applyActions(ctx context.Context, svc *model.Service, usage panel.ClientUsage, actions []Action) {
	now := m.nowFunc()
	for _, a := range actions {
		switch a.Kind {
		case ActionWarn70:
			m.warnOnce(svc, flagWarned70, warn70Text(svc, BytesToGB(usage.UsedBytes)), renewButtons(svc))
			metrics.Transitions.WithLabelValues("warn_70").Inc()

		case ActionWarnThreeDays:
			remaining := int(time.Unix(0, svc.ExpiresAtNs).Sub(now).Hours() / 24)
			m.warnOnce(svc, flagWarnedThreeDays, threeDayText(svc, remaining), renewButtons(svc))
			metrics.Transitions.WithLabelValues("warn_three_days").Inc()

		case ActionExhaust:
			// A plan both expired and exhausted disables once, with the
			// expiry anchor; only one anchor may ever be set.
			if svc.Status == model.StatusDisabled {
				break
			}
			if m.disable(ctx, svc, flagWarned100, exhaustedText(svc)) {
				metrics.Transitions.WithLabelValues("exhausted").Inc()
			}

		case ActionExpire:
			if svc.Status == model.StatusDisabled {
				break
			}
			if m.disable(ctx, svc, flagWarnedExpired, expiredText(svc)) {
				metrics.Transitions.WithLabelValues("expired").Inc()
			}

		case ActionOverageCheck:
			if overageBreached(usage, a.AnchorNs, m.cfg.GracePeriod, now) {
				m.deleteService(ctx, svc, "overage breach", overageDeletedText(svc))
				metrics.Transitions.WithLabelValues("overage_delete").Inc()
				return // service gone, remaining actions moot
			}
		}
	}
}

// warnOnce sends a flag-guarded notification. The flag is re-read from the
// store right before sending to close the window against a concurrent
// evaluation of the same service.
func (m *Monitor) warnOnce(svc *model.Service, flag, text string, buttons [][]notify.Button) {
	flags, err := m.store.WarningFlags(svc.ID)
	if err != nil {
		log.Printf("[monitor] service %d: read warning flags: %v", svc.ID, err)
		return
	}
	if flagSet(flags, flag) {
		return
	}
	if err := m.store.SetWarningFlag(svc.ID, flag, true); err != nil {
		log.Printf("[monitor] service %d: set flag %s: %v", svc.ID, flag, err)
		return
	}
	m.notifyUser(svc, text, buttons)
}

// disable suspends the service on the panel, persists the disabled status
// with its grace-period anchor, and notifies the user once. The transition
// is committed only after the panel call succeeds: a failed remote disable
// leaves the service active so the next pass retries it. Reports whether
// the transition was applied.
func (m *Monitor) disable(ctx context.Context, svc *model.Service, flag, text string) bool {
	client, ok := m.panels.Get(svc.PanelID)
	if !ok {
		log.Printf("[monitor] service %d: panel %d not registered", svc.ID, svc.PanelID)
		return false
	}
	if err := client.DisableClient(ctx, svc.InboundID, svc.ClientUUID); err != nil {
		log.Printf("[monitor] service %d: disable on panel %d failed, will retry next pass: %v",
			svc.ID, svc.PanelID, err)
		metrics.PanelErrors.WithLabelValues(fmt.Sprint(svc.PanelID)).Inc()
		return false
	}

	if err := m.store.UpdateStatus(svc.ID, model.StatusDisabled); err != nil {
		log.Printf("[monitor] service %d: persist disabled status: %v", svc.ID, err)
		return false
	}
	var anchorErr error
	if flag == flagWarnedExpired {
		anchorErr = m.store.MarkExpired(svc.ID)
	} else {
		anchorErr = m.store.MarkExhausted(svc.ID)
	}
	if anchorErr != nil {
		log.Printf("[monitor] service %d: persist grace anchor: %v", svc.ID, anchorErr)
	}
	svc.Status = model.StatusDisabled

	m.warnOnce(svc, flag, text, renewButtons(svc))
	return true
}

// deleteService removes the service remotely (best-effort) and locally, then
// notifies the user and the reporting channel. The store is authoritative; a
// failed remote delete leaks a stale disabled client and is only logged.
func (m *Monitor) deleteService(ctx context.Context, svc *model.Service, reason, text string) {
	if client, ok := m.panels.Get(svc.PanelID); ok {
		if err := client.DeleteClient(ctx, svc.InboundID, svc.ClientUUID); err != nil {
			log.Printf("[monitor] service %d: delete on panel %d: %v (continuing)", svc.ID, svc.PanelID, err)
			metrics.PanelErrors.WithLabelValues(fmt.Sprint(svc.PanelID)).Inc()
		}
	} else {
		log.Printf("[monitor] service %d: panel %d not registered, removing record only", svc.ID, svc.PanelID)
	}

	if err := m.store.DeleteService(svc.ID); err != nil {
		log.Printf("[monitor] service %d: delete record: %v", svc.ID, err)
		return
	}
	log.Printf("[monitor] service %d deleted: %s", svc.ID, reason)

	m.notifyUser(svc, text, buyButtons())
	m.report(reportDeletedText(svc, reason))
}

// notifyUser resolves the owning user and enqueues a message for them.
func (m *Monitor) notifyUser(svc *model.Service, text string, buttons [][]notify.Button) {
	user, err := m.store.UserByID(svc.UserID)
	if err != nil {
		log.Printf("[monitor] service %d: resolve user %d: %v", svc.ID, svc.UserID, err)
		return
	}
	m.notifier.Enqueue(notify.Message{Recipient: user.TelegramID, Text: text, Buttons: buttons})
	metrics.NotificationsSent.WithLabelValues("user").Inc()
}

func flagSet(flags model.WarningFlags, name string) bool {
	switch name {
	case flagWarned70:
		return flags.Warned70Percent
	case flagWarned100:
		return flags.Warned100Percent
	case flagWarnedThreeDays:
		return flags.WarnedThreeDays
	case flagWarnedExpired:
		return flags.WarnedExpired
	}
	return false
}
