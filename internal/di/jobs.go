package di

import (
	"fmt"

	"github.com/aristath/graham/internal/config"
	"github.com/aristath/graham/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	walCheckpointSchedule = "@hourly"
	vacuumSchedule        = "0 3 * * 0" // Sunday 3 AM
)

// JobInstances holds the registered jobs. Optional jobs are nil when unscheduled.
type JobInstances struct {
	WALCheckpoints    *scheduler.CheckWALCheckpointsJob
	Vacuum            *scheduler.VacuumDatabasesJob
	RefreshRates      *scheduler.RefreshRatesJob
	ScheduledBacktest *scheduler.ScheduledBacktestJob
}

// RegisterJobs creates the jobs and adds them to sched
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container.RatesService == nil || container.BacktestService == nil {
		return nil, fmt.Errorf("services must be initialized before jobs")
	}

	jobs := &JobInstances{
		WALCheckpoints: scheduler.NewCheckWALCheckpointsJob(log, container.HistoryDB, container.LedgerDB),
		Vacuum:         scheduler.NewVacuumDatabasesJob(log, container.HistoryDB, container.LedgerDB),
	}
	if err := sched.AddJob(walCheckpointSchedule, jobs.WALCheckpoints); err != nil {
		return nil, err
	}
	if err := sched.AddJob(vacuumSchedule, jobs.Vacuum); err != nil {
		return nil, err
	}

	if cfg.RatesSchedule != "" {
		jobs.RefreshRates = scheduler.NewRefreshRatesJob(container.RatesService, cfg.BCB.Series, log)
		if err := sched.AddJob(cfg.RatesSchedule, jobs.RefreshRates); err != nil {
			return nil, err
		}
	}

	if cfg.Schedule != "" {
		jobs.ScheduledBacktest = scheduler.NewScheduledBacktestJob(container.BacktestService, cfg.DefinitionPath, cfg.Run, log)
		if err := sched.AddJob(cfg.Schedule, jobs.ScheduledBacktest); err != nil {
			return nil, err
		}
	}

	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")
	return jobs, nil
}
