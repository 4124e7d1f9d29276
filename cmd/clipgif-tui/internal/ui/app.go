// Package ui provides the terminal user interface for the clipgif TUI.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iconidentify/clipgif/cmd/clipgif-tui/internal/client"
	"github.com/iconidentify/clipgif/cmd/clipgif-tui/internal/config"
	"github.com/iconidentify/clipgif/internal/api/handler"
	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/encoder"
)

// Panel represents a UI panel type.
type Panel int

const (
	PanelDashboard Panel = iota
	PanelJobs
	PanelEvents
	PanelHelp
)

// snapshot is one refresh worth of server state.
type snapshot struct {
	queue    *handler.QueueResponse
	jobs     []handler.JobView
	encoders []encoder.Info
	events   []domain.Message
}

// App is the main TUI application.
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	cfg          *config.Config
	api          *client.Client
	state        snapshot
	stateMu      sync.RWMutex
	currentPanel Panel
	ctx          context.Context
	cancel       context.CancelFunc

	// UI components
	mainFlex      *tview.Flex
	header        *tview.TextView
	footer        *tview.TextView
	statusBar     *tview.TextView
	dashboardView *tview.Flex
	queueBox      *tview.TextView
	activeBox     *tview.TextView
	encodersBox   *tview.TextView
	jobsTable     *tview.Table
	eventsView    *tview.TextView
	helpView      *tview.TextView

	// jobFilter restricts the jobs table to one status; empty shows all.
	jobFilter     domain.JobStatus
	refreshTicker *time.Ticker
}

// NewApp creates a new TUI application.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:    tview.NewApplication(),
		pages:  tview.NewPages(),
		cfg:    cfg,
		api:    client.NewClient(cfg.ServerURL, cfg.APIKey, cfg.RequestTimeout),
		ctx:    ctx,
		cancel: cancel,
	}

	a.setupUI()
	return a, nil
}

// setupUI initializes all UI components.
func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.updateHeader()

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]1[white]:Dashboard [yellow]2[white]:Jobs [yellow]3[white]:Events [yellow]?[white]:Help [yellow]r[white]:Refresh [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.createDashboardPanel()
	a.createJobsPanel()
	a.createEventsPanel()
	a.createHelpPanel()

	a.pages.AddPage("dashboard", a.dashboardView, true, true)
	a.pages.AddPage("jobs", a.jobsTable, true, false)
	a.pages.AddPage("events", a.eventsView, true, false)
	a.pages.AddPage("help", a.helpView, true, false)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetInputCapture(a.handleGlobalKeys)
	a.app.SetRoot(a.mainFlex, true)
}

// handleGlobalKeys handles global keyboard shortcuts.
func (a *App) handleGlobalKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case '1':
			a.switchPanel(PanelDashboard)
			return nil
		case '2':
			a.switchPanel(PanelJobs)
			return nil
		case '3':
			a.switchPanel(PanelEvents)
			return nil
		case '?':
			a.switchPanel(PanelHelp)
			return nil
		case 'q', 'Q':
			a.Stop()
			return nil
		case 'r', 'R':
			go a.refreshStatus()
			return nil
		}
	case tcell.KeyF1:
		a.switchPanel(PanelDashboard)
		return nil
	case tcell.KeyF2:
		a.switchPanel(PanelJobs)
		return nil
	case tcell.KeyF3:
		a.switchPanel(PanelEvents)
		return nil
	case tcell.KeyEscape:
		a.switchPanel(PanelDashboard)
		return nil
	}

	return event
}

// switchPanel switches to the specified panel.
func (a *App) switchPanel(panel Panel) {
	a.currentPanel = panel

	switch panel {
	case PanelDashboard:
		a.pages.SwitchToPage("dashboard")
	case PanelJobs:
		a.pages.SwitchToPage("jobs")
		a.app.SetFocus(a.jobsTable)
	case PanelEvents:
		a.pages.SwitchToPage("events")
	case PanelHelp:
		a.pages.SwitchToPage("help")
	}

	a.updateHeader()
}

func (a *App) updateHeader() {
	a.header.SetText(fmt.Sprintf("\n[white::b]clipgif TUI[white] - [yellow]%s[white] | Server: [green]%s",
		panelName(a.currentPanel), a.cfg.ServerURL))
}

func panelName(p Panel) string {
	switch p {
	case PanelDashboard:
		return "Dashboard"
	case PanelJobs:
		return "Jobs"
	case PanelEvents:
		return "Events"
	case PanelHelp:
		return "Help"
	}
	return ""
}

func (a *App) updateStatusBar(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | Last refresh: %s", msg, time.Now().Format("15:04:05")))
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.startBackgroundRefresh()
	go a.refreshStatus()

	return a.app.Run()
}

// Stop stops the TUI application.
func (a *App) Stop() {
	a.cancel()
	if a.refreshTicker != nil {
		a.refreshTicker.Stop()
	}
	a.app.Stop()
}

func (a *App) startBackgroundRefresh() {
	a.refreshTicker = time.NewTicker(a.cfg.StatusRefresh)
	defer a.refreshTicker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.refreshTicker.C:
			a.refreshStatus()
		}
	}
}

// refreshStatus polls the queue, jobs, encoders and recent events.
func (a *App) refreshStatus() {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.RequestTimeout)
	defer cancel()

	queue, err := a.api.Queue(ctx)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}
	jobs, err := a.api.Jobs(ctx, string(a.jobFilter))
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	// Encoders and events are best effort
	encoders, _ := a.api.Encoders(ctx)
	var events []domain.Message
	if res, err := a.api.Events(ctx, a.cfg.EventLimit); err == nil {
		events = res.Messages
	}

	sortJobs(jobs)

	a.stateMu.Lock()
	a.state = snapshot{queue: queue, jobs: jobs, encoders: encoders, events: events}
	a.stateMu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.updateDashboard()
		a.updateJobsTable()
		a.updateEvents()
	})

	failed := queue.CountsByStatus[domain.JobStatusFailed]
	if failed > 0 {
		a.updateStatusBar(fmt.Sprintf("[yellow]%d failed job(s) retained", failed))
	} else {
		a.updateStatusBar("[green]Queue healthy")
	}
}

func (a *App) getState() snapshot {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}
