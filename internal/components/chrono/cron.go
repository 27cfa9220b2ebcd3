package chrono

import (
	"context"
	"fmt"

	"instconnect/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs on cron schedules.
type Scheduler interface {
	Schedule(spec string, job func()) error
}

// CronScheduler implements Scheduler with `github.com/robfig/cron/v3`. A job
// never overlaps with its previous run, a run still going when the next one
// is due skips it.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler interprets schedules in api's location. Jobs only run
// after Start.
func NewCronScheduler(api API, tel telemetry.API) CronScheduler {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	return CronScheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithLocation(api.Location()),
			cron.WithChain(
				cron.Recover(logger),
				cron.SkipIfStillRunning(logger),
			),
		),
	}
}

func (s CronScheduler) Schedule(spec string, job func()) error {
	_, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

func (s CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, the returned context is done once running jobs
// have finished.
func (s CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"job",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
