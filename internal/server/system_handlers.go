package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/graham/internal/database"
)

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	Goroutines    int     `json:"goroutines"`
	HeapMB        float64 `json:"heap_mb"`
	DataDirMB     float64 `json:"data_dir_mb"`
	RunCount      int     `json:"run_count"`
	LastChecked   string  `json:"last_checked"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
	WALMB  float64 `json:"wal_mb"`
	Pages  int64   `json:"pages"`
}

// DatabaseStatsResponse is the body of GET /api/system/databases
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// JobInfo is a scheduled job with its next run
type JobInfo struct {
	Name    string `json:"name"`
	NextRun string `json:"next_run,omitempty"`
}

// handleSystemStatus reports process and host resource usage
// GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	runCount := 0
	if s.ledgerDB != nil {
		if err := s.ledgerDB.Conn().QueryRowContext(r.Context(), "SELECT COUNT(*) FROM runs").Scan(&runCount); err != nil {
			s.log.Warn().Err(err).Msg("Failed to count runs")
		}
	}

	s.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		HeapMB:        float64(memStats.HeapAlloc) / 1024 / 1024,
		DataDirMB:     s.getDirSize(s.dataDir),
		RunCount:      runCount,
		LastChecked:   time.Now().Format(time.RFC3339),
	})
}

// handleDatabaseStats reports the size of each database
// GET /api/system/databases
func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range []*database.DB{s.historyDB, s.ledgerDB} {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		info := DBInfo{
			Name:   db.Name(),
			Path:   db.Path(),
			SizeMB: float64(stats.SizeBytes) / 1024 / 1024,
			WALMB:  float64(stats.WALSizeBytes) / 1024 / 1024,
			Pages:  stats.PageCount,
		}
		response.TotalSizeMB += info.SizeMB + info.WALMB
		response.Databases = append(response.Databases, info)
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleJobs lists scheduled jobs
// GET /api/system/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []JobInfo{}
	if s.scheduler != nil {
		for name, next := range s.scheduler.Jobs() {
			info := JobInfo{Name: name}
			if !next.IsZero() {
				info.NextRun = next.Format(time.RFC3339)
			}
			jobs = append(jobs, info)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// getDirSize calculates total size of a directory in MB
func (s *Server) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages
func (s *Server) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
