package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"drillx/internal/api"
)

// maxEvents bounds the event log
const maxEvents = 200

// Source is the gateway the dashboard watches
type Source interface {
	GetHealth(ctx context.Context) (*api.HealthResponse, error)
	GetMetrics(ctx context.Context) (*api.MetricsResponse, error)
	BatchFrom(ctx context.Context, challenge []byte, start uint64, batchSize int32) (*api.BatchResponse, error)
}

// DashboardConfig configures a Dashboard
type DashboardConfig struct {
	// Challenge hashed by batches started from the dashboard
	Challenge []byte

	// First nonce of the next batch
	StartNonce uint64

	// Lanes per batch
	BatchSize int32

	// Gateway poll period
	Interval time.Duration

	// Timeout of a single gateway request
	RequestTimeout time.Duration
}

type statusMsg struct {
	health  *api.HealthResponse
	metrics *api.MetricsResponse
	err     error
}

type batchDoneMsg struct {
	start uint64
	resp  *api.BatchResponse
	err   error
}

type resourceMsg struct {
	data string
}

type hideCopyNoticeMsg struct{}

// Dashboard is a live view of a hasher-host gateway: its health, its
// counters and the batches started from the dashboard itself.
type Dashboard struct {
	source Source
	cfg    DashboardConfig

	Width  int
	Height int

	spinner  spinner.Model
	progress progress.Model
	events   viewport.Model

	Health    *api.HealthResponse
	Metrics   *api.MetricsResponse
	Best      *api.BestResponse
	LastErr   error
	Running   bool
	NextNonce uint64

	ResourceData   string
	ShowCopyNotice bool
	Events         []string

	copyFn func(string) error
}

// NewDashboard creates a dashboard polling source
func NewDashboard(source Source, cfg DashboardConfig) Dashboard {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = infoStyle

	events := viewport.New(76, 8)
	events.Style = eventViewStyle

	d := Dashboard{
		source:    source,
		cfg:       cfg,
		Width:     80,
		Height:    24,
		spinner:   sp,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		events:    events,
		NextNonce: cfg.StartNonce,
		copyFn:    clipboard.WriteAll,
	}
	d.appendEvent(fmt.Sprintf("watching gateway, challenge %x", cfg.Challenge))
	return d
}

// Init starts polling
func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(
		d.spinner.Tick,
		d.fetchStatus(),
		d.updateResourceData(),
	)
}

// Update handles UI updates
func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		case "b":
			if !d.Running {
				d.Running = true
				d.appendEvent(fmt.Sprintf("batch of %d from nonce %d", d.cfg.BatchSize, d.NextNonce))
				return d, d.runBatch(d.NextNonce)
			}
			return d, nil
		case "c":
			cmd := d.copyBest()
			return d, cmd
		}

	case tea.WindowSizeMsg:
		d = d.handleResize(msg)

	case statusMsg:
		if msg.err != nil {
			if d.LastErr == nil || d.LastErr.Error() != msg.err.Error() {
				d.appendEvent(errorStyle.Render("gateway: " + msg.err.Error()))
			}
			d.LastErr = msg.err
		} else {
			if d.LastErr != nil {
				d.appendEvent(successStyle.Render("gateway reachable"))
			}
			d.LastErr = nil
			d.Health = msg.health
			d.Metrics = msg.metrics
		}
		cmds = append(cmds, d.scheduleStatus())

	case batchDoneMsg:
		d.Running = false
		if msg.err != nil {
			d.appendEvent(errorStyle.Render(fmt.Sprintf("batch from %d failed: %v", msg.start, msg.err)))
			break
		}
		d.NextNonce = msg.start + uint64(len(msg.resp.Digests))
		line := fmt.Sprintf("batch from %d: %d/%d solved in %.1fms on %s",
			msg.start, msg.resp.SolvedLanes, len(msg.resp.Digests), msg.resp.LatencyMs, msg.resp.Backend)
		d.appendEvent(line)
		if b := msg.resp.Best; b != nil && (d.Best == nil || b.Difficulty > d.Best.Difficulty) {
			d.Best = b
			d.appendEvent(successStyle.Render(fmt.Sprintf("new best: nonce %d difficulty %d", b.Nonce, b.Difficulty)))
		}

	case resourceMsg:
		d.ResourceData = msg.data
		cmds = append(cmds, d.updateResourceData())

	case hideCopyNoticeMsg:
		d.ShowCopyNotice = false

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	d.events, cmd = d.events.Update(msg)
	cmds = append(cmds, cmd)

	return d, tea.Batch(cmds...)
}

func (d Dashboard) handleResize(msg tea.WindowSizeMsg) Dashboard {
	d.Width = msg.Width
	d.Height = msg.Height

	d.events.Width = max(msg.Width-4, 20)
	d.events.Height = max(msg.Height-18, 3)
	d.progress.Width = max(msg.Width-30, 10)
	d.refreshEvents()
	return d
}

func (d *Dashboard) appendEvent(line string) {
	stamp := time.Now().Format("15:04:05")
	d.Events = append(d.Events, labelStyle.Render(stamp)+" "+line)
	if len(d.Events) > maxEvents {
		d.Events = d.Events[len(d.Events)-maxEvents:]
	}
	d.refreshEvents()
}

func (d *Dashboard) refreshEvents() {
	width := d.events.Width - 2
	if width < 10 {
		width = 10
	}
	wrapped := make([]string, len(d.Events))
	for i, e := range d.Events {
		wrapped[i] = ansi.Wordwrap(e, width, " \t")
	}
	d.events.SetContent(strings.Join(wrapped, "\n"))
	d.events.GotoBottom()
}

// fetchStatus polls the gateway once
func (d Dashboard) fetchStatus() tea.Cmd {
	source, timeout := d.source, d.cfg.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		health, err := source.GetHealth(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		metrics, err := source.GetMetrics(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{health: health, metrics: metrics}
	}
}

func (d Dashboard) scheduleStatus() tea.Cmd {
	fetch := d.fetchStatus()
	return tea.Tick(d.cfg.Interval, func(time.Time) tea.Msg {
		return fetch()
	})
}

func (d Dashboard) runBatch(start uint64) tea.Cmd {
	source, cfg := d.source, d.cfg
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()

		resp, err := source.BatchFrom(ctx, cfg.Challenge, start, cfg.BatchSize)
		return batchDoneMsg{start: start, resp: resp, err: err}
	}
}

// copyBest copies "nonce:hash" of the best lane to the clipboard
func (d *Dashboard) copyBest() tea.Cmd {
	if d.Best == nil {
		d.appendEvent(warnStyle.Render("nothing to copy yet"))
		return nil
	}
	text := fmt.Sprintf("%d:%s", d.Best.Nonce, d.Best.Hash)
	if err := d.copyFn(text); err != nil {
		d.appendEvent(errorStyle.Render("clipboard: " + err.Error()))
		return nil
	}
	d.ShowCopyNotice = true
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return hideCopyNoticeMsg{}
	})
}

// updateResourceData samples local resource usage
func (d Dashboard) updateResourceData() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		data := "Go: " + runtime.Version()
		if cpuPercent, err := psutil.Percent(0, false); err == nil && len(cpuPercent) > 0 {
			data = fmt.Sprintf("CPU: %.1f%% | %s", cpuPercent[0], data)
		}
		if memInfo, err := psmem.VirtualMemory(); err == nil {
			data = fmt.Sprintf("%s | RAM: %.1f%%", data, memInfo.UsedPercent)
		}
		return resourceMsg{data}
	})
}

// SolvedRatio is the share of gateway lanes that carried a solution
func (d Dashboard) SolvedRatio() float64 {
	if d.Metrics == nil || d.Metrics.TotalLanes == 0 {
		return 0
	}
	return float64(d.Metrics.SolvedLanes) / float64(d.Metrics.TotalLanes)
}

// View renders the dashboard
func (d Dashboard) View() string {
	width := d.Width
	if width <= 0 {
		width = 80
	}
	fit := func(s string) string { return ansi.Truncate(s, width-4, "…") }

	var b strings.Builder
	b.WriteString(headerStyle.Width(width).Render("drillx monitor") + "\n")

	var status strings.Builder
	switch {
	case d.LastErr != nil:
		status.WriteString(errorStyle.Render("● unreachable") + "  " + d.LastErr.Error())
	case d.Health == nil:
		status.WriteString(d.spinner.View() + " connecting")
	default:
		st := successStyle.Render("● " + d.Health.Status)
		if d.Health.Status != "healthy" {
			st = warnStyle.Render("● " + d.Health.Status)
		}
		status.WriteString(fmt.Sprintf("%s  backend %s  up %s  cpu %.1f%%  mem %.1f%%",
			st, d.Health.Backend, d.Health.Uptime, d.Health.CPUPercent, d.Health.MemoryUsedPercent))
	}
	b.WriteString(panelStyle.Render(fit(status.String())) + "\n")

	if m := d.Metrics; m != nil {
		lines := []string{
			fmt.Sprintf("%s %d ok / %d failed", labelStyle.Render("batches:"), m.SuccessfulBatches, m.FailedBatches),
			fmt.Sprintf("%s %d solved of %d", labelStyle.Render("lanes:  "), m.SolvedLanes, m.TotalLanes),
			fmt.Sprintf("%s %.2fms", labelStyle.Render("latency:"), m.AverageLatencyMs),
			labelStyle.Render("solved: ") + " " + d.progress.ViewAs(d.SolvedRatio()),
		}
		for i := range lines {
			lines[i] = fit(lines[i])
		}
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n")
	}

	best := labelStyle.Render("best:   ") + " none yet"
	if d.Best != nil {
		best = fmt.Sprintf("%s nonce %d  difficulty %d  hash %s",
			labelStyle.Render("best:   "), d.Best.Nonce, d.Best.Difficulty, d.Best.Hash)
	}
	next := fmt.Sprintf("%s %d", labelStyle.Render("next:   "), d.NextNonce)
	if d.Running {
		next += "  " + d.spinner.View() + " running"
	}
	b.WriteString(panelStyle.Render(fit(best)+"\n"+fit(next)) + "\n")

	b.WriteString(d.events.View() + "\n")

	if d.ShowCopyNotice {
		b.WriteString(copyNoticeStyle.Render("copied best nonce to clipboard") + "\n")
	}

	help := helpStyle.Render("b: run batch • c: copy best • ↑/↓: scroll • q: quit")
	footer := lipgloss.JoinHorizontal(lipgloss.Top, help, "  ", d.ResourceData)
	b.WriteString(footerStyle.Width(width).Render(ansi.Truncate(footer, width-4, "…")))

	return b.String()
}
