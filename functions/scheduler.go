package functions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
)

// Scheduler runs cycles on a cron schedule until its context is canceled.
// Ticks that arrive while a cycle is still running are skipped, and a
// panicking cycle is logged instead of taking the process down.
type Scheduler struct {
	spec       string
	runOnStart bool
	runner     CycleRunner
	logger     logger.Logger
}

// NewScheduler accepts standard five-field specs and descriptors such as
// "@daily" or "@every 6h".
func NewScheduler(spec string, runOnStart bool, runner CycleRunner, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		spec:       spec,
		runOnStart: runOnStart,
		runner:     runner,
		logger:     log,
	}
}

// Run blocks until ctx is done, then waits for the running cycle to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.spec, err)
	}

	cronLog := cronLogger{logger: s.logger}
	job := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(func() { s.runner.RunCycle(ctx) }))

	c := cron.New(cron.WithLogger(cronLog))
	c.Schedule(schedule, job)

	var initial sync.WaitGroup
	if s.runOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			job.Run()
		}()
	}

	c.Start()
	s.logger.Info("scheduler started",
		logger.String("schedule", s.spec),
		logger.Time("next_run", schedule.Next(time.Now().In(c.Location()))),
		logger.Bool("run_on_start", s.runOnStart))

	<-ctx.Done()

	s.logger.Info("scheduler stopping, waiting for running cycle")
	<-c.Stop().Done()
	initial.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger. cron's info messages
// (wake, run, schedule) are per tick, so they go to debug.
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, cronFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(cronFields(keysAndValues), logger.Error(err))...)
}

func cronFields(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
