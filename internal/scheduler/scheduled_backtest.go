package scheduler

import (
	"context"
	"time"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/services"
	"github.com/rs/zerolog"
)

// PairRunner runs a backtest definition
type PairRunner interface {
	RunPair(ctx context.Context, def *definition.Definition) (*services.PairResult, error)
}

// ScheduledBacktestJob re-runs a definition file. The file is read on every
// run so edits apply without a restart.
type ScheduledBacktestJob struct {
	runner   PairRunner
	path     string
	defaults definition.Defaults
	timeout  time.Duration
	log      zerolog.Logger
}

// NewScheduledBacktestJob creates a new ScheduledBacktestJob
func NewScheduledBacktestJob(runner PairRunner, path string, defaults definition.Defaults, log zerolog.Logger) *ScheduledBacktestJob {
	return &ScheduledBacktestJob{
		runner:   runner,
		path:     path,
		defaults: defaults,
		timeout:  30 * time.Minute,
		log:      log.With().Str("job", "scheduled_backtest").Logger(),
	}
}

// Name returns the job name
func (j *ScheduledBacktestJob) Name() string {
	return "scheduled_backtest"
}

// Run loads the definition and runs the pair
func (j *ScheduledBacktestJob) Run() error {
	def, err := definition.LoadFile(j.path, j.defaults)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	pair, err := j.runner.RunPair(ctx, def)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("pair_id", pair.PairID).
		Float64("excess_return_pct", pair.Comparison.ExcessReturnPct).
		Msg("Scheduled backtest finished")
	return nil
}
