package scheduler

import (
	"fmt"
	"time"

	"github.com/aristath/graham/internal/database"
	"github.com/rs/zerolog"
)

// VacuumDatabasesJob reclaims the pages freed by deleted runs and replaced
// market data
type VacuumDatabasesJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewVacuumDatabasesJob creates a new VacuumDatabasesJob. Nil databases are skipped.
func NewVacuumDatabasesJob(log zerolog.Logger, databases ...*database.DB) *VacuumDatabasesJob {
	return &VacuumDatabasesJob{
		log:       log.With().Str("job", "vacuum_databases").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *VacuumDatabasesJob) Name() string {
	return "vacuum_databases"
}

// Run vacuums each database. A failure on one database does not stop the others.
func (j *VacuumDatabasesJob) Run() error {
	startTime := time.Now()
	var failed []string

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().
				Str("database", db.Name()).
				Err(err).
				Msg("VACUUM failed")
			failed = append(failed, db.Name())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("vacuum failed for %v", failed)
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Database vacuum completed")

	return nil
}

func (j *VacuumDatabasesJob) vacuumDatabase(db *database.DB) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", db.Name()).
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Float64("space_reclaimed_mb", float64((before.PageCount-after.PageCount)*before.PageSize)/1024/1024).
		Msg("VACUUM completed")

	return nil
}
