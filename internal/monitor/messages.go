package monitor

import (
	"fmt"

	"github.com/orbitvpn/sentinel/internal/model"
	"github.com/orbitvpn/sentinel/internal/notify"
)

// Notification texts and keyboards. Wording differs between volume services
// (renew by adding traffic) and plan services (renew the subscription).

func renewButtons(svc *model.Service) [][]notify.Button {
	if svc.IsPlan() {
		return [][]notify.Button{
			{{Text: "Renew plan", CallbackData: fmt.Sprintf("renew_service_%d", svc.ID)}},
			{{Text: "Main menu", CallbackData: "main_menu"}},
		}
	}
	return [][]notify.Button{
		{{Text: "Add volume", CallbackData: fmt.Sprintf("add_volume_%d", svc.ID)}},
		{{Text: "Main menu", CallbackData: "main_menu"}},
	}
}

func buyButtons() [][]notify.Button {
	return [][]notify.Button{
		{{Text: "Buy new service", CallbackData: "buy_service"}},
		{{Text: "Main menu", CallbackData: "main_menu"}},
	}
}

func warn70Text(svc *model.Service, usedGB float64) string {
	return fmt.Sprintf(
		"⚠️ *Traffic warning*\n\nService *%s* has used %.2f of %.2f GB (over 70%%).\nTop up now to avoid interruption.",
		svc.ClientName, usedGB, svc.TotalGB)
}

func exhaustedText(svc *model.Service) string {
	return fmt.Sprintf(
		"🔴 *Service suspended*\n\nService *%s* has used its full traffic quota and was suspended.\nYou have 24 hours to top up before it is removed.",
		svc.ClientName)
}

func threeDayText(svc *model.Service, remainingDays int) string {
	return fmt.Sprintf(
		"⏳ *Plan expiring*\n\nService *%s* expires in %d day(s).\nRenew now to keep it running.",
		svc.ClientName, remainingDays)
}

func expiredText(svc *model.Service) string {
	return fmt.Sprintf(
		"🔴 *Plan expired*\n\nService *%s* reached its expiry date and was suspended.\nYou have 24 hours to renew before it is removed.",
		svc.ClientName)
}

func overageDeletedText(svc *model.Service) string {
	return fmt.Sprintf(
		"❌ *Service removed*\n\nService *%s* exceeded the allowed overage during its grace period and was removed.",
		svc.ClientName)
}

func graceDeletedText(svc *model.Service) string {
	return fmt.Sprintf(
		"❌ *Service removed*\n\nThe 24-hour grace period of service *%s* ended without renewal; the service was removed.",
		svc.ClientName)
}

func reportDeletedText(svc *model.Service, reason string) string {
	kind := "volume"
	if svc.IsPlan() {
		kind = "plan"
	}
	return fmt.Sprintf("🗑 service %d (%s, %s) deleted: %s", svc.ID, svc.ClientName, kind, reason)
}
