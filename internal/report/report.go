// Package report posts operational summaries to the reporting chat on a
// cron schedule.
package report

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/orbitvpn/sentinel/internal/notify"
	"github.com/orbitvpn/sentinel/internal/store"
)

// Config configures the daily report service.
type Config struct {
	ChatID   int64  // reporting chat, 0 disables the service
	Schedule string // cron expression, default "0 9 * * *"
}

// Service renders the fleet usage summary and enqueues it for the reporting
// chat on schedule.
type Service struct {
	store    *store.Store
	notifier *notify.Dispatcher
	chatID   int64
	cron     *cron.Cron
}

// NewService creates the report service and registers its schedule.
func NewService(st *store.Store, notifier *notify.Dispatcher, cfg Config) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 9 * * *"
	}
	s := &Service{
		store:    st,
		notifier: notifier,
		chatID:   cfg.ChatID,
		cron:     cron.New(),
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		if err := s.PostSummary(); err != nil {
			log.Printf("[report] scheduled summary failed: %v", err)
		}
	}); err != nil {
		log.Printf("[report] invalid cron expression %q: %v", cfg.Schedule, err)
	}
	return s
}

// Start begins the cron scheduler. No-op when no chat is configured.
func (s *Service) Start() {
	if s.chatID == 0 {
		log.Printf("[report] no reporting chat configured, daily summary disabled")
		return
	}
	s.cron.Start()
	log.Printf("[report] daily summary scheduled")
}

// Stop halts the scheduler, waiting for a running job to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// PostSummary composes the current fleet summary and enqueues it.
func (s *Service) PostSummary() error {
	sum, err := s.store.Summary()
	if err != nil {
		return fmt.Errorf("report summary: %w", err)
	}
	s.notifier.Enqueue(notify.Message{Recipient: s.chatID, Text: SummaryText(sum)})
	return nil
}

// SummaryText renders a usage summary as a report message.
func SummaryText(sum store.UsageSummary) string {
	return fmt.Sprintf(
		"📊 *Daily summary*\n\nServices: %d total, %d active, %d in grace period\nTraffic consumed: %.2f GB",
		sum.TotalServices, sum.ActiveServices, sum.DisabledServices, sum.TotalUsedGB)
}
