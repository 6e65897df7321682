package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"

	"github.com/orbitvpn/sentinel/internal/buildinfo"
	"github.com/orbitvpn/sentinel/internal/config"
	"github.com/orbitvpn/sentinel/internal/metrics"
	"github.com/orbitvpn/sentinel/internal/monitor"
	"github.com/orbitvpn/sentinel/internal/notify"
	"github.com/orbitvpn/sentinel/internal/panel"
	"github.com/orbitvpn/sentinel/internal/report"
	"github.com/orbitvpn/sentinel/internal/store"
	"github.com/orbitvpn/sentinel/internal/telegram"
)

func main() {
	// 1. Load .env (if present) and validate environment config
	_ = gotenv.Load()
	cfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log.Printf("sentinel %s (%s, built %s) starting",
		buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	// 2. Open the store
	st, err := store.Open(cfg.StateDir)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	// 3. Build panel adapters
	panels, err := config.LoadPanels(cfg.PanelsFile)
	if err != nil {
		log.Fatalf("panels: %v", err)
	}
	registry, err := panel.NewRegistryFromConfig(panels, cfg.PanelTimeout)
	if err != nil {
		log.Fatalf("panels: %v", err)
	}
	log.Printf("loaded %d panel(s) from %s", registry.Size(), cfg.PanelsFile)

	// 4. Wire the notification pipeline
	messenger, err := telegram.New(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	log.Printf("authenticated as @%s", messenger.BotUsername())

	dispatcher := notify.NewDispatcher(notify.Config{
		Messenger:     messenger,
		QueueSize:     cfg.NotifyQueueSize,
		MinInterval:   cfg.NotifyMinInterval,
		MaxConcurrent: cfg.NotifyMaxConcurrent,
	})
	dispatcher.Start()

	// 5. Start the monitor and the daily report
	mon := monitor.New(st, registry, dispatcher, monitor.Config{
		CheckInterval:  cfg.CheckInterval,
		ErrorBackoff:   cfg.ErrorBackoff,
		GracePeriod:    cfg.GracePeriod,
		ServiceWorkers: cfg.ServiceWorkers,
		ReportChatID:   cfg.ReportChatID,
	})
	mon.Start()

	reporter := report.NewService(st, dispatcher, report.Config{
		ChatID:   cfg.ReportChatID,
		Schedule: cfg.DailyReportSpec,
	})
	reporter.Start()

	// 6. Ops endpoint
	opsAddr := fmt.Sprintf("%s:%d", cfg.OpsListenAddress, cfg.OpsPort)
	ops := metrics.NewServer(opsAddr, cfg.MetricsEnabled)
	go func() {
		log.Printf("ops server listening on %s", opsAddr)
		if err := ops.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops server: %v", err)
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ops.Shutdown(ctx); err != nil {
		log.Printf("ops server shutdown: %v", err)
	}
	reporter.Stop()
	mon.Stop()
	dispatcher.Stop()
	log.Println("stopped")
}
