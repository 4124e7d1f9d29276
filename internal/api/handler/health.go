package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/iconidentify/clipgif/internal/worker"
)

var startTime = time.Now()

// QueueReporter reports job queue state.
type QueueReporter interface {
	QueueStatus(ctx context.Context) worker.Status
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	queue   QueueReporter
	tempDir string
}

// NewHealthHandler creates a new health handler. tempDir is where remote
// sources are downloaded; readiness fails when it is missing.
func NewHealthHandler(queue QueueReporter, tempDir string) *HealthHandler {
	return &HealthHandler{
		queue:   queue,
		tempDir: tempDir,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Queue     *worker.Status `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.tempDir != "" {
		if info, err := os.Stat(h.tempDir); err != nil || !info.IsDir() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:    "error",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Error:     "temp directory unavailable",
			})
			return
		}
	}

	status := h.queue.QueueStatus(ctx)
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     &status,
	})
}

// DiskStats describes the filesystem holding the temp directory.
type DiskStats struct {
	Path       string  `json:"path"`
	TotalBytes int64   `json:"total_bytes"`
	FreeBytes  int64   `json:"free_bytes"`
	UsedBytes  int64   `json:"used_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

// SystemStats contains process and host resource statistics.
type SystemStats struct {
	Uptime        int64         `json:"uptime_seconds"`
	UptimeHuman   string        `json:"uptime_human"`
	MemAllocMB    int64         `json:"mem_alloc_mb"`
	MemSysMB      int64         `json:"mem_sys_mb"`
	MemHeapMB     int64         `json:"mem_heap_mb"`
	NumGoroutines int           `json:"num_goroutines"`
	NumCPU        int           `json:"num_cpu"`
	CPUPercent    float64       `json:"cpu_percent"`
	Disk          DiskStats     `json:"disk"`
	Queue         worker.Status `json:"queue"`
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const mb = 1 << 20
	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / mb),
		MemSysMB:      int64(m.Sys / mb),
		MemHeapMB:     int64(m.HeapAlloc / mb),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    processCPU.sample(),
		Queue:         h.queue.QueueStatus(r.Context()),
	}
	if h.tempDir != "" {
		stats.Disk = diskUsage(h.tempDir)
		stats.Disk.Path = h.tempDir
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
