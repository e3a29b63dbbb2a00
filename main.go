package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pollenjp/ipa-shiken-fetcher/config"
	"github.com/pollenjp/ipa-shiken-fetcher/db"
	"github.com/pollenjp/ipa-shiken-fetcher/extractor"
	"github.com/pollenjp/ipa-shiken-fetcher/functions"
	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/notify"
	"github.com/pollenjp/ipa-shiken-fetcher/utils"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Extra arguments are fetch URLs on top of the configured ones.
	cfg, err := config.Load(os.Args[1:]...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: CONFIG='{\"webhook_url\":\"...\",\"fetch_urls\":[\"...\"]}' ipa-shiken-fetcher [url ...]")
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("fetcher exited with error", logger.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal functions.DeliveryJournal
	if cfg.JournalPath != "" {
		j, err := db.OpenJournal(cfg.JournalPath, log.With(logger.String("component", "journal")))
		if err != nil {
			return err
		}
		defer func() { _ = j.GracefulShutdown(shutdownTimeout) }()

		if err := j.HealthCheck(ctx); err != nil {
			return err
		}
		logJournalState(ctx, j, log)
		journal = j
	}

	transport, err := functions.NewTransport(cfg.Proxy.Addr, cfg.Proxy.User, cfg.Proxy.Password)
	if err != nil {
		return err
	}
	pageClient := &http.Client{Timeout: cfg.FetchTimeout, Transport: transport}

	var robots *functions.RobotsChecker
	if cfg.RespectRobots {
		robots = functions.NewRobotsChecker(pageClient, cfg.UserAgent, log.With(logger.String("component", "robots")))
	}

	fetchURLs := make([]string, 0, len(cfg.FetchURLs))
	for _, u := range cfg.FetchURLs {
		fetchURLs = append(fetchURLs, u.String())
	}

	// The webhook is never proxied.
	webhookClient := &http.Client{Timeout: cfg.FetchTimeout}

	runner := functions.NewRunner(functions.RunnerConfig{
		URLs:      cfg.FetchURLs,
		Fetcher:   functions.NewFetcher(pageClient, cfg.UserAgent, robots, log.With(logger.String("component", "fetcher"))),
		Extractor: extractor.New(log.With(logger.String("component", "extractor"))),
		Sender:    notify.NewSink(webhookClient, cfg.WebhookURL, log.With(logger.String("component", "webhook"))),
		Journal:   journal,
		Logger:    log.With(logger.String("component", "runner")),
	})

	log.Info("fetcher starting",
		logger.Strings("fetch_urls", fetchURLs),
		logger.String("webhook", utils.RedactPath(cfg.WebhookURL)),
		logger.String("schedule", cfg.Schedule),
		logger.Bool("respect_robots", cfg.RespectRobots),
		logger.Bool("proxy", cfg.Proxy.Addr != ""),
		logger.Bool("journal", journal != nil))

	if cfg.Schedule == "" {
		summary := runner.RunCycle(ctx)
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d urls failed", summary.Failed, summary.Total)
		}
		return nil
	}

	return functions.NewScheduler(cfg.Schedule, cfg.RunOnStart, runner, log.With(logger.String("component", "scheduler"))).Run(ctx)
}

// logJournalState reports the journal size and its newest row at startup.
func logJournalState(ctx context.Context, j *db.Journal, log logger.Logger) {
	count, err := j.Count(ctx)
	if err != nil {
		log.Warn("journal count failed", logger.Error(err))
		return
	}

	fields := []logger.Field{logger.Int("deliveries", count)}
	recent, err := j.Recent(ctx, 1)
	if err != nil {
		log.Warn("journal read failed", logger.Error(err))
	} else if len(recent) > 0 {
		fields = append(fields,
			logger.String("last_run_id", recent[0].RunID),
			logger.String("last_status", string(recent[0].Status)),
			logger.Time("last_at", recent[0].CreatedAt))
	}
	log.Info("journal ready", fields...)
}
