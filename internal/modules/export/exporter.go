package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aristath/graham/internal/modules/results"
	"github.com/rs/zerolog"
)

// Report lists what an export produced
type Report struct {
	Dir      string   `json:"dir"`
	Files    []string `json:"files"`
	Uploaded []string `json:"uploaded,omitempty"` // Object keys
}

// Exporter writes runs under a base directory and mirrors them to an
// optional object store
type Exporter struct {
	baseDir string
	store   ObjectStore
	prefix  string
	log     zerolog.Logger
}

// NewExporter creates an exporter. store may be nil to export locally only.
func NewExporter(baseDir string, store ObjectStore, prefix string, log zerolog.Logger) *Exporter {
	return &Exporter{
		baseDir: baseDir,
		store:   store,
		prefix:  prefix,
		log:     log.With().Str("component", "exporter").Logger(),
	}
}

// Export writes result into <baseDir>/<runID>/ and uploads each file to
// <prefix>/<runID>/<file> when a store is configured.
func (e *Exporter) Export(ctx context.Context, runID string, result *results.Result) (*Report, error) {
	dir := filepath.Join(e.baseDir, runID)
	files, err := WriteRun(dir, result)
	if err != nil {
		return nil, fmt.Errorf("failed to export run %s: %w", runID, err)
	}

	report := &Report{Dir: dir, Files: files}

	if e.store != nil {
		for _, file := range files {
			key := path.Join(e.prefix, runID, filepath.Base(file))
			if err := e.upload(ctx, key, file); err != nil {
				return report, err
			}
			report.Uploaded = append(report.Uploaded, key)
		}
	}

	e.log.Info().
		Str("run_id", runID).
		Str("dir", dir).
		Int("uploaded", len(report.Uploaded)).
		Msg("Run exported")

	return report, nil
}

func (e *Exporter) upload(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	if err := e.store.Upload(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
