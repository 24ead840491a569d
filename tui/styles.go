package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// RenderSummary produces a Lip Gloss styled summary of an audit. Broken
// links are grouped into one table per destination status. crawl may be nil
// when the crawl was skipped.
func RenderSummary(res *result.Result, crawl *crawler.CrawlStats, reportPath string) string {
	if res == nil {
		return errorStyle.Render("No results available.")
	}

	var builder strings.Builder

	if crawl != nil {
		builder.WriteString(renderCrawlStats(crawl))
	}

	if len(res.BrokenLinks) == 0 {
		builder.WriteString(successStyle.Render("No broken links found!"))
		builder.WriteString("\n")
		builder.WriteString(dimStyle.Render(fmt.Sprintf(
			"Scanned %d records in %s",
			res.Stats.RecordsScanned,
			res.Stats.Duration.Round(time.Millisecond),
		)))
		builder.WriteString("\n")
		builder.WriteString(renderReportPath(reportPath))
		return builder.String()
	}

	grouped := make(map[int][]result.ResolvedLink)
	for _, link := range res.BrokenLinks {
		grouped[link.DestinationStatus] = append(grouped[link.DestinationStatus], link)
	}
	statuses := make([]int, 0, len(grouped))
	for status := range grouped {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)

	for _, status := range statuses {
		links := grouped[status]
		label := strconv.Itoa(status)
		if desc := links[0].DestinationDescription; desc != "" {
			label += " " + desc
		}
		builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", label, len(links))))
		builder.WriteString("\n")

		rows := make([][]string, 0, len(links))
		for _, link := range links {
			rows = append(rows, []string{link.DestinationURL, link.AnchorText, link.OriginURL})
		}

		statusTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("Broken URL", "Anchor Text", "Found On").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 0 {
					return statusErrorStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		builder.WriteString(statusTable.Render())
		builder.WriteString("\n\n")
	}

	builder.WriteString(titleStyle.Render(fmt.Sprintf(
		"Found %d broken links on %d pages, %d records scanned (%s)",
		res.Stats.BrokenCount,
		res.Stats.AffectedOrigins,
		res.Stats.RecordsScanned,
		res.Stats.Duration.Round(time.Millisecond),
	)))
	builder.WriteString("\n")
	builder.WriteString(renderReportPath(reportPath))

	return builder.String()
}

func renderCrawlStats(crawl *crawler.CrawlStats) string {
	var builder strings.Builder
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"Crawled %d pages into %d records in %s",
		crawl.PagesFetched, crawl.Records, crawl.Duration.Round(time.Millisecond),
	)))
	builder.WriteString("\n")
	for _, cc := range crawl.Errors.Sorted() {
		builder.WriteString(dimStyle.Render(fmt.Sprintf("  %s: %d", result.FormatCategory(cc.Category), cc.Count)))
		builder.WriteString("\n")
	}
	if crawl.RobotsDisallowed > 0 {
		builder.WriteString(dimStyle.Render(fmt.Sprintf("  Disallowed by robots.txt: %d", crawl.RobotsDisallowed)))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
	return builder.String()
}

func renderReportPath(reportPath string) string {
	if reportPath == "" {
		return ""
	}
	return dimStyle.Render("Report written to "+reportPath) + "\n"
}
