//go:build linux || darwin

package handler

import (
	"sync"
	"syscall"
	"time"
)

// diskUsage reports the filesystem holding path. Errors yield zero values.
func diskUsage(path string) DiskStats {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return DiskStats{}
	}
	d := DiskStats{
		TotalBytes: int64(fs.Blocks) * int64(fs.Bsize),
		FreeBytes:  int64(fs.Bavail) * int64(fs.Bsize),
	}
	d.UsedBytes = d.TotalBytes - d.FreeBytes
	if d.TotalBytes > 0 {
		d.UsedPct = float64(d.UsedBytes) / float64(d.TotalBytes) * 100
	}
	return d
}

// cpuSampler turns rusage totals into a percentage between calls.
type cpuSampler struct {
	mu   sync.Mutex
	cpu  time.Duration
	wall time.Time
}

var processCPU cpuSampler

// sample returns CPU usage since the previous call, capped to one core.
// The first call returns 0.
func (s *cpuSampler) sample() float64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpu := time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prevCPU, prevWall := s.cpu, s.wall
	s.cpu, s.wall = cpu, now
	if prevWall.IsZero() {
		return 0
	}

	wall := now.Sub(prevWall)
	if wall <= 0 {
		return 0
	}
	return min(max(float64(cpu-prevCPU)/float64(wall)*100, 0), 100)
}
