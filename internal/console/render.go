package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/session"
)

var (
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	panelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)
	approvedStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	deniedStyle   = lipgloss.NewStyle().Foreground(colorRed)
	reviewStyle   = lipgloss.NewStyle().Foreground(colorYellow)
)

func row(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), fmt.Sprint(value))
}

// RenderSummary renders the end-of-run summary
func RenderSummary(s core.RunSummary) string {
	rows := []string{
		titleStyle.Render("Run complete"),
		row("Session", s.SessionID),
		row("Duration", s.CompletedAt.Sub(s.StartedAt).Round(time.Second)),
		row("Decided", s.Total),
		row("Approved", approvedStyle.Render(fmt.Sprint(s.Approved))),
		row("Denied", deniedStyle.Render(fmt.Sprint(s.Denied))),
		row("For review", reviewStyle.Render(fmt.Sprint(s.Flagged))),
	}
	if s.BatchFailed > 0 {
		rows = append(rows, row("Failed batches", deniedStyle.Render(fmt.Sprint(s.BatchFailed))))
	}
	for _, g := range core.Gates() {
		if n := s.GateFailures[g]; n > 0 {
			rows = append(rows, row("  "+string(g), n))
		}
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// RenderSession renders a saved session for inspection
func RenderSession(st session.State) string {
	rows := []string{
		titleStyle.Render("Saved session"),
		row("Session", st.SessionID),
		row("Status", string(st.Status)),
		row("Started", st.StartedAt.Local().Format(time.RFC1123)),
		row("Last update", st.LastUpdated.Local().Format(time.RFC1123)),
		row("Decided", len(st.DecidedIDs)),
		row("Approved", approvedStyle.Render(fmt.Sprint(st.Counters.Approved))),
		row("Denied", deniedStyle.Render(fmt.Sprint(st.Counters.Denied))),
		row("For review", reviewStyle.Render(fmt.Sprint(st.Counters.Flagged))),
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// RenderReview renders review-queue records, one line each
func RenderReview(recs []records.Record) string {
	if len(recs) == 0 {
		return "Nothing to review."
	}
	lines := make([]string, 0, len(recs)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("%d emails need review", len(recs))))
	for _, r := range recs {
		blocking := make([]string, len(r.BlockingGates))
		for i, g := range r.BlockingGates {
			blocking[i] = string(g)
		}
		lines = append(lines, fmt.Sprintf("%s %3d%% %-14s %s  %s",
			reviewStyle.Render("?"),
			r.Confidence,
			r.Category,
			r.Sender,
			lipgloss.NewStyle().Foreground(colorGray).Render(r.Subject+" ["+strings.Join(blocking, ",")+"]")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderReviewItem renders one queued record with its gate results
func RenderReviewItem(r records.Record) string {
	rows := []string{
		row("From", r.Sender),
		row("Subject", r.Subject),
		row("Category", r.Category),
		row("Confidence", fmt.Sprintf("%d%% (%s)", r.Confidence, r.ConfidenceTier)),
		row("Verified", r.Verified),
	}
	blocking := make(map[core.Gate]bool, len(r.BlockingGates))
	for _, g := range r.BlockingGates {
		blocking[g] = true
	}
	for _, g := range core.Gates() {
		mark := approvedStyle.Render("PASS")
		if blocking[g] {
			mark = deniedStyle.Render("FAIL")
		}
		rows = append(rows, row("  "+string(g), mark+" "+r.Reasons[g]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// RenderReviewSummary counts the actions of one review pass
func RenderReviewSummary(decs []records.ReviewDecision) string {
	counts := make(map[records.ReviewAction]int)
	for _, d := range decs {
		counts[d.Action]++
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Review saved"),
		row("Approved", approvedStyle.Render(fmt.Sprint(counts[records.ReviewApprove]))),
		row("Kept", deniedStyle.Render(fmt.Sprint(counts[records.ReviewReject]))),
		row("Skipped", reviewStyle.Render(fmt.Sprint(counts[records.ReviewSkip]))),
	))
}
