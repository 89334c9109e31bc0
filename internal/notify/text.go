package notify

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// PlainText renders data as a single paragraph for channels without rich
// formatting.
func PlainText(data domain.NotificationData, opts Options) string {
	var b strings.Builder
	b.WriteString(headline(data))

	if sub := subtitle(data); sub != "" {
		fmt.Fprintf(&b, " (%s)", sub)
	}

	if severities := nonZeroSeverities(data.SeverityCounts); len(severities) > 0 {
		parts := make([]string, 0, len(severities))
		for _, line := range severities {
			parts = append(parts, fmt.Sprintf("%d %s", line.count, line.severity))
		}
		fmt.Fprintf(&b, ": %s.", strings.Join(parts, ", "))
	} else {
		b.WriteString(".")
	}

	warnings, more := topWarnings(data, opts)
	if len(warnings) > 0 {
		lines := make([]string, 0, len(warnings))
		for _, w := range warnings {
			lines = append(lines, warningLine(w))
		}
		fmt.Fprintf(&b, " Top warnings: %s", strings.Join(lines, "; "))
		if more > 0 {
			fmt.Fprintf(&b, "; ... and %d more", more)
		}
		b.WriteString(".")
	}

	if url := strings.TrimSpace(data.DashboardURL); url != "" {
		fmt.Fprintf(&b, " Dashboard: %s", url)
	}

	return b.String()
}
