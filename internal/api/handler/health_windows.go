//go:build windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

// diskUsage reports the volume holding path. Errors yield zero values.
func diskUsage(path string) DiskStats {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskStats{}
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return DiskStats{}
	}

	d := DiskStats{
		TotalBytes: int64(totalBytes),
		FreeBytes:  int64(freeBytes),
	}
	d.UsedBytes = d.TotalBytes - d.FreeBytes
	if d.TotalBytes > 0 {
		d.UsedPct = float64(d.UsedBytes) / float64(d.TotalBytes) * 100
	}
	return d
}

// cpuSampler turns process times into a percentage between calls.
type cpuSampler struct {
	mu   sync.Mutex
	cpu  time.Duration
	wall time.Time
}

var processCPU cpuSampler

// filetimeDuration converts a FILETIME interval (100ns ticks) to a Duration.
func filetimeDuration(ft windows.Filetime) time.Duration {
	return time.Duration(int64(ft.HighDateTime)<<32|int64(ft.LowDateTime)) * 100
}

// sample returns CPU usage since the previous call, capped to one core.
// The first call returns 0.
func (s *cpuSampler) sample() float64 {
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(windows.CurrentProcess(), &creation, &exit, &kernel, &user); err != nil {
		return 0
	}
	cpu := filetimeDuration(kernel) + filetimeDuration(user)
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
