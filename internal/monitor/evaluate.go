package monitor

import (
	"math"
	"time"

	"github.com/orbitvpn/sentinel/internal/model"
	"github.com/orbitvpn/sentinel/internal/panel"
)

// ActionKind identifies one lifecycle decision produced by the evaluator.
type ActionKind string

const (
	// ActionWarn70 notifies the user at 70% quota consumption.
	ActionWarn70 ActionKind = "warn_70"
	// ActionExhaust disables a service that consumed its full quota.
	ActionExhaust ActionKind = "exhaust"
	// ActionWarnThreeDays notifies a plan user three days before expiry.
	ActionWarnThreeDays ActionKind = "warn_three_days"
	// ActionExpire disables a plan service past its expiry time.
	ActionExpire ActionKind = "expire"
	// ActionOverageCheck tests a disabled service against the in-grace
	// overage limits and deletes it on breach.
	ActionOverageCheck ActionKind = "overage_check"
)

// Action is one decision for the lifecycle engine to apply.
type Action struct {
	Kind ActionKind
	// AnchorNs is the grace-period anchor for overage checks: exhausted_at
	// for volume services, expired_at for plans.
	AnchorNs int64
}

const bytesPerGB = 1 << 30

// BytesToGB converts a byte count to gigabytes at 4-decimal precision,
// matching the store's counter resolution.
func BytesToGB(b int64) float64 {
	return math.Round(float64(b)/bytesPerGB*1e4) / 1e4
}

// usagePercent computes consumed quota percent. Callers must ensure
// total > 0.
func usagePercent(used, total int64) float64 {
	return float64(used) / float64(total) * 100
}

// Evaluate derives the lifecycle actions for one service from its live
// panel usage. Pure: no I/O, no mutation. Plan expiry is evaluated before
// traffic thresholds; at most one overage check is emitted.
func Evaluate(svc *model.Service, usage panel.ClientUsage, now time.Time) []Action {
	var actions []Action
	overageEmitted := false

	if svc.IsPlan() && svc.ExpiresAtNs > 0 {
		expires := time.Unix(0, svc.ExpiresAtNs)
		remainingDays := int(expires.Sub(now).Hours() / 24)
		switch {
		case remainingDays > 0 && remainingDays <= 3 && !svc.Flags.WarnedThreeDays:
			actions = append(actions, Action{Kind: ActionWarnThreeDays})
		case !expires.After(now) && svc.Status != model.StatusDisabled:
			actions = append(actions, Action{Kind: ActionExpire})
		case svc.Status == model.StatusDisabled && svc.ExpiredAtNs > 0:
			actions = append(actions, Action{Kind: ActionOverageCheck, AnchorNs: svc.ExpiredAtNs})
			overageEmitted = true
		}
	}

	// Unlimited services carry no traffic thresholds.
	if usage.TotalBytes <= 0 {
		return actions
	}

	pct := usagePercent(usage.UsedBytes, usage.TotalBytes)
	switch {
	case pct >= 70 && pct < 100 && svc.Status != model.StatusDisabled && !svc.Flags.Warned70Percent:
		actions = append(actions, Action{Kind: ActionWarn70})
	case pct >= 100 && svc.Status != model.StatusDisabled:
		actions = append(actions, Action{Kind: ActionExhaust})
	case pct >= 100 && svc.Status == model.StatusDisabled && !overageEmitted:
		actions = append(actions, Action{Kind: ActionOverageCheck, AnchorNs: svc.ExhaustedAtNs})
	}

	return actions
}

// overageBreached applies the shared in-grace overage rule: the check is
// live only while the anchor is younger than the grace window; a breach is
// 110% consumption or 1 GB past quota.
func overageBreached(usage panel.ClientUsage, anchorNs int64, grace time.Duration, now time.Time) bool {
	if anchorNs <= 0 || usage.TotalBytes <= 0 {
		return false
	}
	if now.Sub(time.Unix(0, anchorNs)) >= grace {
		return false
	}
	overage := usage.UsedBytes - usage.TotalBytes
	if overage < 0 {
		overage = 0
	}
	return usagePercent(usage.UsedBytes, usage.TotalBytes) >= 110 || BytesToGB(overage) >= 1.0
}
