package functions

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/models"
	"github.com/pollenjp/ipa-shiken-fetcher/utils"
)

// RunnerConfig wires a Runner. Journal is optional.
type RunnerConfig struct {
	URLs      []*url.URL
	Fetcher   PageFetcher
	Extractor RecordExtractor
	Sender    RecordSender
	Journal   DeliveryJournal
	Logger    logger.Logger
}

// Runner performs fetch, extract and send for every configured URL.
type Runner struct {
	urls      []*url.URL
	fetcher   PageFetcher
	extractor RecordExtractor
	sender    RecordSender
	journal   DeliveryJournal
	history   DeliveryHistory
	logger    logger.Logger
	now       func() time.Time
}

func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	history, _ := cfg.Journal.(DeliveryHistory)
	return &Runner{
		urls:      cfg.URLs,
		fetcher:   cfg.Fetcher,
		extractor: cfg.Extractor,
		sender:    cfg.Sender,
		journal:   cfg.Journal,
		history:   history,
		logger:    log,
		now:       time.Now,
	}
}

// RunCycle visits the URLs in order. A failure on one URL is logged and
// journaled and the cycle moves on; cancellation of ctx stops it before the
// next URL.
func (r *Runner) RunCycle(ctx context.Context) models.CycleSummary {
	start := r.now()
	summary := models.CycleSummary{RunID: utils.NewRunID()}
	log := r.logger.With(logger.String("run_id", summary.RunID))

	log.Info("cycle started", logger.Int("urls", len(r.urls)))

	for _, target := range r.urls {
		if err := ctx.Err(); err != nil {
			log.Info("cycle interrupted", logger.Error(err))
			break
		}

		delivery := r.step(ctx, log, target)
		delivery.RunID = summary.RunID

		summary.Total++
		switch delivery.Status {
		case models.StatusSent:
			summary.Sent++
		case models.StatusNoRecord:
			summary.NoRecord++
		default:
			summary.Failed++
		}

		r.record(ctx, log, delivery)
	}

	summary.Duration = r.now().Sub(start)
	log.Info("cycle finished",
		logger.Int("total", summary.Total),
		logger.Int("sent", summary.Sent),
		logger.Int("no_record", summary.NoRecord),
		logger.Int("failed", summary.Failed),
		logger.Duration("duration", summary.Duration))

	r.logJournaled(ctx, log, summary.RunID)
	return summary
}

func (r *Runner) step(ctx context.Context, log logger.Logger, target *url.URL) models.Delivery {
	source := target.String()
	delivery := models.Delivery{
		SourceID:  utils.SourceID(source),
		SourceURL: source,
		CreatedAt: r.now(),
	}
	log = log.With(logger.String("url", source))

	page, err := r.fetcher.FetchPage(ctx, target)
	if err != nil {
		delivery.Error = err.Error()
		if errors.Is(err, ErrDisallowedByRobots) {
			delivery.Status = models.StatusBlocked
			log.Warn("page blocked by robots.txt")
			return delivery
		}
		delivery.Status = models.StatusFetchFailed
		log.Error("fetch failed", logger.Error(err))
		return delivery
	}

	record, found, err := r.extractor.ExtractPage(page)
	if err != nil {
		delivery.Status = models.StatusFetchFailed
		delivery.Error = err.Error()
		log.Error("page could not be parsed", logger.Error(err))
		return delivery
	}
	if !found {
		delivery.Status = models.StatusNoRecord
		log.Info("no item fragment on page")
		return delivery
	}

	delivery.Title = record.Title
	delivery.Fingerprint = utils.Fingerprint(record)

	r.checkRepeat(ctx, log, delivery)

	if err := r.sender.Send(ctx, record); err != nil {
		delivery.Status = models.StatusSendFailed
		delivery.Error = err.Error()
		log.Error("send failed", logger.String("title", record.Title), logger.Error(err))
		return delivery
	}

	delivery.Status = models.StatusSent
	log.Info("item delivered", logger.String("title", record.Title))
	return delivery
}

func (r *Runner) record(ctx context.Context, log logger.Logger, delivery models.Delivery) {
	if r.journal == nil {
		return
	}
	// The outcome of an interrupted step is still worth keeping.
	if err := r.journal.Record(context.WithoutCancel(ctx), delivery); err != nil {
		log.Warn("journal write failed",
			logger.String("url", delivery.SourceURL),
			logger.Error(err))
	}
}

// checkRepeat logs when the source's last successful delivery carried the
// same item. The item is sent regardless.
func (r *Runner) checkRepeat(ctx context.Context, log logger.Logger, delivery models.Delivery) {
	if r.history == nil {
		return
	}

	last, err := r.history.LastSent(ctx, delivery.SourceID)
	if err != nil {
		log.Warn("journal lookup failed", logger.Error(err))
		return
	}
	if last != nil && last.Fingerprint == delivery.Fingerprint {
		log.Info("item already delivered",
			logger.String("title", delivery.Title),
			logger.String("previous_run_id", last.RunID),
			logger.Time("previous_at", last.CreatedAt))
	}
}

// logJournaled reports what the journal holds for the run.
func (r *Runner) logJournaled(ctx context.Context, log logger.Logger, runID string) {
	if r.history == nil {
		return
	}

	counts, err := r.history.CountByStatus(context.WithoutCancel(ctx), runID)
	if err != nil {
		log.Warn("journal count failed", logger.Error(err))
		return
	}

	fields := make([]logger.Field, 0, len(counts))
	for _, status := range []models.DeliveryStatus{
		models.StatusSent, models.StatusNoRecord, models.StatusFetchFailed,
		models.StatusBlocked, models.StatusSendFailed,
	} {
		fields = append(fields, logger.Int(string(status), counts[status]))
	}
	log.Info("cycle journaled", fields...)
}
