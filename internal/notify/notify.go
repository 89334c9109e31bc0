// Package notify renders analysis results into the payload shapes accepted by
// the supported notification channels. Every function is pure.
package notify

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

const (
	DefaultTopWarnings = 5
	reportTitle        = "Swift Concurrency Warnings"
)

// Theme colors keyed by the highest severity present in a report.
const (
	ColorCritical = "D13438"
	ColorHigh     = "FF8C00"
	ColorMedium   = "FFB900"
	ColorLow      = "0078D4"
	ColorClean    = "107C10"
)

// Options tunes how much detail a formatter includes.
type Options struct {
	TopWarnings int
}

func (o Options) topWarnings() int {
	if o.TopWarnings <= 0 {
		return DefaultTopWarnings
	}
	return o.TopWarnings
}

// HighestSeverity returns the most severe level with a non-zero count and
// false when the report has no warnings.
func HighestSeverity(counts domain.SeverityCounts) (domain.Severity, bool) {
	highest := counts.Highest()
	return highest, highest != ""
}

// ThemeColor maps the highest severity in counts to a hex color without '#'.
func ThemeColor(counts domain.SeverityCounts) string {
	highest, ok := HighestSeverity(counts)
	if !ok {
		return ColorClean
	}

	switch highest {
	case domain.SeverityCritical:
		return ColorCritical
	case domain.SeverityHigh:
		return ColorHigh
	case domain.SeverityMedium:
		return ColorMedium
	default:
		return ColorLow
	}
}

type severityLine struct {
	severity domain.Severity
	count    int
}

// nonZeroSeverities returns severities with a count, most severe first.
func nonZeroSeverities(counts domain.SeverityCounts) []severityLine {
	lines := make([]severityLine, 0, len(domain.Severities))
	for _, s := range domain.Severities {
		if n := counts.Count(s); n > 0 {
			lines = append(lines, severityLine{severity: s, count: n})
		}
	}
	return lines
}

func headline(data domain.NotificationData) string {
	total := data.SeverityCounts.Total()
	if total == 0 {
		return fmt.Sprintf("No concurrency warnings in %s", data.DisplayName())
	}
	return fmt.Sprintf("%d concurrency %s in %s", total, plural(total, "warning", "warnings"), data.DisplayName())
}

// subtitle renders "branch @ sha, PR #n, build b", omitting missing parts.
func subtitle(data domain.NotificationData) string {
	parts := make([]string, 0, 3)

	ref := strings.TrimSpace(data.Branch)
	if sha := data.ShortCommit(); sha != "" {
		if ref == "" {
			ref = sha
		} else {
			ref = ref + " @ " + sha
		}
	}
	if ref != "" {
		parts = append(parts, ref)
	}
	if data.PullRequest != nil {
		parts = append(parts, fmt.Sprintf("PR #%d", *data.PullRequest))
	}
	if build := strings.TrimSpace(data.BuildID); build != "" {
		parts = append(parts, "build "+build)
	}

	return strings.Join(parts, ", ")
}

func warningLine(w domain.WarningSummary) string {
	return fmt.Sprintf("%s - %s", w.Location(), strings.TrimSpace(w.Message))
}

func topWarnings(data domain.NotificationData, opts Options) ([]domain.WarningSummary, int) {
	limit := opts.topWarnings()
	if len(data.TopWarnings) <= limit {
		return data.TopWarnings, 0
	}
	return data.TopWarnings[:limit], len(data.TopWarnings) - limit
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
