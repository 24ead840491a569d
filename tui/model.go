// Package tui provides the Bubble Tea terminal UI for zombietrail,
// displaying live crawl and resolution progress and a styled summary of
// the broken links found.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/resolver"
	"github.com/lukemcguire/zombietrail/result"
)

// Stages is the audit the TUI drives. Crawl and Resolve close their
// progress channel when they return.
type Stages interface {
	Crawl(ctx context.Context, progressCh chan<- crawler.CrawlEvent) (*crawler.CrawlStats, error)
	Resolve(ctx context.Context, progressCh chan<- resolver.PhaseEvent) (*result.Result, error)
	WriteReport(res *result.Result) error
	ReportPath() string
}

type stage int

const (
	stageCrawling stage = iota
	stageResolving
	stageDone
)

// Model is the Bubble Tea model for an audit run.
type Model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stages    Stages
	skipCrawl bool
	spinner   spinner.Model
	crawlCh   chan crawler.CrawlEvent
	phaseCh   chan resolver.PhaseEvent

	stage    stage
	checked  int
	records  int
	failing  int
	queued   int
	current  string
	phase    resolver.Phase
	scanned  int
	quitting bool
	crawl    *crawler.CrawlStats
	result   *result.Result
	err      error
	width    int
}

// NewModel creates a TUI model wired to the given stages. With skipCrawl the
// model starts at resolution.
func NewModel(ctx context.Context, cancel context.CancelFunc, stages Stages, skipCrawl bool) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	m := Model{
		ctx:       ctx,
		cancel:    cancel,
		stages:    stages,
		skipCrawl: skipCrawl,
		spinner:   spin,
		crawlCh:   make(chan crawler.CrawlEvent, 100),
		phaseCh:   make(chan resolver.PhaseEvent, 4),
	}
	if skipCrawl {
		m.stage = stageResolving
	}
	return m
}

// Init starts the spinner and the first stage with its progress listener.
func (m Model) Init() tea.Cmd {
	if m.skipCrawl {
		return tea.Batch(m.spinner.Tick, m.startResolve(), waitForPhase(m.phaseCh))
	}
	return tea.Batch(m.spinner.Tick, m.startCrawl(), waitForProgress(m.crawlCh))
}

// startCrawl returns a tea.Cmd that runs the crawl and sends CrawlDoneMsg.
func (m Model) startCrawl() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.stages.Crawl(m.ctx, m.crawlCh)
		return CrawlDoneMsg{Stats: stats, Err: err}
	}
}

// startResolve returns a tea.Cmd that resolves the store, writes the report
// and sends ResolveDoneMsg.
func (m Model) startResolve() tea.Cmd {
	return func() tea.Msg {
		res, err := m.stages.Resolve(m.ctx, m.phaseCh)
		if err != nil {
			return ResolveDoneMsg{Err: err}
		}
		if err := m.stages.WriteReport(res); err != nil {
			return ResolveDoneMsg{Err: err}
		}
		return ResolveDoneMsg{Result: res}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case CrawlProgressMsg:
		m.checked = msg.Checked
		m.records = msg.Records
		m.failing = msg.Failing
		m.queued = msg.Queued
		m.current = msg.URL
		return m, waitForProgress(m.crawlCh)

	case CrawlDoneMsg:
		m.crawl = msg.Stats
		if msg.Err != nil {
			m.stage = stageDone
			m.err = msg.Err
			return m, tea.Quit
		}
		m.stage = stageResolving
		return m, tea.Batch(m.startResolve(), waitForPhase(m.phaseCh))

	case PhaseMsg:
		m.phase = msg.Event.Phase
		m.scanned = msg.Event.Records
		return m, waitForPhase(m.phaseCh)

	case ResolveDoneMsg:
		m.stage = stageDone
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case channelClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	switch {
	case m.Cancelled():
		return dimStyle.Render("Cancelled.") + "\n"
	case m.stage == stageDone && m.err != nil:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case m.stage == stageDone && m.result != nil:
		reportPath := ""
		if m.stages != nil {
			reportPath = m.stages.ReportPath()
		}
		return RenderSummary(m.result, m.crawl, reportPath)
	case m.stage == stageResolving:
		return fmt.Sprintf("%s Resolving... %s, %d records scanned\n",
			m.spinner.View(), m.phase, m.scanned)
	}
	return fmt.Sprintf("%s Crawling... checked %d, queued %d, records %d, failing %d\n%s\n",
		m.spinner.View(), m.checked, m.queued, m.records, m.failing,
		dimStyle.Render("  "+m.current))
}

// HasBrokenLinks reports whether the audit found any broken links.
func (m Model) HasBrokenLinks() bool {
	return m.result != nil && len(m.result.BrokenLinks) > 0
}

// GetResult returns the resolution result, nil if the audit did not finish.
func (m Model) GetResult() *result.Result {
	return m.result
}

// Err returns the error that ended the audit, if any.
func (m Model) Err() error {
	return m.err
}

// Cancelled reports whether the user quit before the audit finished.
func (m Model) Cancelled() bool {
	return m.quitting && m.stage != stageDone
}
