package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/iconidentify/clipgif/internal/api/handler"
	"github.com/iconidentify/clipgif/internal/domain"
)

// progressBar renders pct (clamped to 0..100) as a fixed-width bar.
func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func statusColor(s domain.JobStatus) string {
	switch s {
	case domain.JobStatusPending:
		return "yellow"
	case domain.JobStatusProcessing:
		return "cyan"
	case domain.JobStatusCompleted:
		return "green"
	case domain.JobStatusFailed:
		return "red"
	}
	return "white"
}

func tcellColor(s domain.JobStatus) tcell.Color {
	return tcell.GetColor(statusColor(s))
}

func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityError:
		return "red"
	case domain.SeverityWarning:
		return "yellow"
	case domain.SeveritySuccess:
		return "green"
	}
	return "white"
}

// shortID keeps the first block of a UUID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGT"[exp])
}

// sortJobs orders active jobs first, then newest first.
func sortJobs(jobs []handler.JobView) {
	sort.SliceStable(jobs, func(i, j int) bool {
		ai, aj := jobs[i].Status.IsTerminal(), jobs[j].Status.IsTerminal()
		if ai != aj {
			return !ai
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
