package notify

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// Block Kit limits enforced by Slack.
const (
	slackMaxBlocks      = 50
	slackMaxSectionText = 3000
)

// SlackPayload is an incoming-webhook message. Blocks live inside a single
// attachment so the severity color renders as the side bar.
type SlackPayload struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type     string         `json:"type"`
	Text     *SlackText     `json:"text,omitempty"`
	Fields   []SlackText    `json:"fields,omitempty"`
	Elements []SlackElement `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SlackElement struct {
	Type string     `json:"type"`
	Text *SlackText `json:"text,omitempty"`
	URL  string     `json:"url,omitempty"`
}

// SlackMessage renders data as Block Kit content colored by its highest
// severity.
func SlackMessage(data domain.NotificationData, opts Options) SlackPayload {
	summary := headline(data)

	blocks := []SlackBlock{
		{Type: "header", Text: plainText(reportTitle)},
		{Type: "section", Text: markdown(slackSummary(data))},
	}

	severities := nonZeroSeverities(data.SeverityCounts)
	if len(severities) > 0 {
		fields := make([]SlackText, 0, len(severities))
		for _, line := range severities {
			fields = append(fields, SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s*\n%d", line.severity.Label(), line.count),
			})
		}
		blocks = append(blocks, SlackBlock{Type: "section", Fields: fields})
	}

	warnings, more := topWarnings(data, opts)
	if len(warnings) > 0 {
		// Room left for warning sections after the divider and the button.
		budget := slackMaxBlocks - len(blocks) - 1
		if strings.TrimSpace(data.DashboardURL) != "" {
			budget--
		}
		if len(warnings)+boolToInt(more > 0) > budget {
			keep := budget - 1
			more += len(warnings) - keep
			warnings = warnings[:keep]
		}

		blocks = append(blocks, SlackBlock{Type: "divider"})
		for _, w := range warnings {
			blocks = append(blocks, SlackBlock{
				Type: "section",
				Text: markdown(fmt.Sprintf("*%s* in `%s`\n%s", w.Type.Label(), w.Location(), strings.TrimSpace(w.Message))),
			})
		}
		if more > 0 {
			blocks = append(blocks, SlackBlock{
				Type: "section",
				Text: markdown(fmt.Sprintf("_... and %d more_", more)),
			})
		}
	}

	if url := strings.TrimSpace(data.DashboardURL); url != "" {
		blocks = append(blocks, SlackBlock{
			Type: "actions",
			Elements: []SlackElement{{
				Type: "button",
				Text: plainText("View dashboard"),
				URL:  url,
			}},
		})
	}

	return SlackPayload{
		Text: summary,
		Attachments: []SlackAttachment{{
			Color:  "#" + ThemeColor(data.SeverityCounts),
			Blocks: blocks,
		}},
	}
}

// SlackSimpleMessage renders a titled text message, used for connection probes.
func SlackSimpleMessage(title, text string) SlackPayload {
	return SlackPayload{
		Text: title,
		Attachments: []SlackAttachment{{
			Color: "#" + ColorLow,
			Blocks: []SlackBlock{
				{Type: "header", Text: plainText(title)},
				{Type: "section", Text: markdown(text)},
			},
		}},
	}
}

func slackSummary(data domain.NotificationData) string {
	summary := headline(data)
	if data.SeverityCounts.Total() == 0 {
		summary = ":white_check_mark: " + summary
	} else {
		summary = ":warning: " + summary
	}
	if sub := subtitle(data); sub != "" {
		summary += "\n" + sub
	}
	return summary
}

func plainText(text string) *SlackText {
	return &SlackText{Type: "plain_text", Text: text}
}

func markdown(text string) *SlackText {
	return &SlackText{Type: "mrkdwn", Text: clampText(text, slackMaxSectionText)}
}

// clampText cuts text to at most limit characters, ending in an ellipsis when
// it had to cut.
func clampText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
