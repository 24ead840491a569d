package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/resolver"
	"github.com/lukemcguire/zombietrail/result"
)

// CrawlProgressMsg reports progress after a page was fetched.
type CrawlProgressMsg struct {
	Checked int
	Records int
	Failing int
	Queued  int
	URL     string
}

// CrawlDoneMsg signals the crawl has completed.
type CrawlDoneMsg struct {
	Stats *crawler.CrawlStats
	Err   error
}

// PhaseMsg reports a resolver phase transition.
type PhaseMsg struct {
	Event resolver.PhaseEvent
}

// ResolveDoneMsg signals resolution and report writing have completed.
type ResolveDoneMsg struct {
	Result *result.Result
	Err    error
}

// channelClosedMsg is sent when a progress channel closes. The stage's own
// done message carries the outcome.
type channelClosedMsg struct{}

// waitForProgress returns a tea.Cmd that reads one event from the crawl
// progress channel.
func waitForProgress(ch <-chan crawler.CrawlEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return CrawlProgressMsg{
			Checked: evt.Checked,
			Records: evt.Records,
			Failing: evt.Failing,
			Queued:  evt.Queued,
			URL:     evt.URL,
		}
	}
}

// waitForPhase returns a tea.Cmd that reads one resolver phase event.
func waitForPhase(ch <-chan resolver.PhaseEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return PhaseMsg{Event: evt}
	}
}
