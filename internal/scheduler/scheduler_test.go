package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	delay time.Duration
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	time.Sleep(j.delay)
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"five fields", "*/5 * * * *", false},
		{"with seconds", "0 */5 * * * *", false},
		{"descriptor", "@daily", false},
		{"every", "@every 1h", false},
		{"invalid", "every tuesday", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(zerolog.Nop())
			err := s.AddJob(tt.schedule, &countingJob{name: "job"})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, s.Jobs())
				return
			}
			require.NoError(t, err)
			assert.Contains(t, s.Jobs(), "job")
		})
	}
}

func TestScheduler_AddJobReplacesSameName(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@daily", &countingJob{name: "job"}))
	require.NoError(t, s.AddJob("@hourly", &countingJob{name: "job"}))

	assert.Len(t, s.Jobs(), 1)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "fast"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())

	ok := &countingJob{name: "ok"}
	assert.NoError(t, s.RunNow(ok))
	assert.Equal(t, int32(1), ok.runs.Load())

	failing := &countingJob{name: "failing", err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")
}

type fakeRefresher struct {
	series string
	err    error
}

func (f *fakeRefresher) Refresh(ctx context.Context, series string) (int, error) {
	f.series = series
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("expected a deadline")
	}
	return 3, f.err
}

func TestRefreshRatesJob(t *testing.T) {
	refresher := &fakeRefresher{}
	job := NewRefreshRatesJob(refresher, "4189", zerolog.Nop())

	assert.Equal(t, "refresh_rates", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, "4189", refresher.series)

	refresher.err = errors.New("offline")
	assert.Error(t, job.Run())
}

type fakeRunner struct {
	def *definition.Definition
}

func (f *fakeRunner) RunPair(ctx context.Context, def *definition.Definition) (*services.PairResult, error) {
	f.def = def
	return &services.PairResult{PairID: "pair"}, nil
}

func TestScheduledBacktestJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightly.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "nightly"
start_date = "2015-01-02"
end_date = "2020-12-30"

[[portfolio]]
ticker = "ITSA4"
weight = 1
`), 0o644))

	runner := &fakeRunner{}
	job := NewScheduledBacktestJob(runner, path, definition.StandardDefaults(), zerolog.Nop())

	assert.Equal(t, "scheduled_backtest", job.Name())
	require.NoError(t, job.Run())
	require.NotNil(t, runner.def)
	assert.Equal(t, "nightly", runner.def.Name)

	missing := NewScheduledBacktestJob(runner, filepath.Join(t.TempDir(), "none.toml"), definition.StandardDefaults(), zerolog.Nop())
	assert.Error(t, missing.Run())
}
