package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// TeamsMessageCard is the legacy Office 365 connector card accepted by Teams
// incoming webhooks.
type TeamsMessageCard struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	ThemeColor      string         `json:"themeColor"`
	Summary         string         `json:"summary"`
	Title           string         `json:"title"`
	Sections        []TeamsSection `json:"sections"`
	PotentialAction []TeamsAction  `json:"potentialAction,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	Title            string      `json:"title,omitempty"`
	Text             string      `json:"text,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TeamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []TeamsTarget `json:"targets"`
}

type TeamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// TeamsCard renders data as a MessageCard colored by its highest severity.
func TeamsCard(data domain.NotificationData, opts Options) TeamsMessageCard {
	summary := headline(data)

	facts := make([]TeamsFact, 0, len(domain.Severities)+1)
	for _, line := range nonZeroSeverities(data.SeverityCounts) {
		facts = append(facts, TeamsFact{Name: line.severity.Label(), Value: strconv.Itoa(line.count)})
	}
	for _, t := range domain.WarningTypes {
		if n := data.TypeCounts[t]; n > 0 {
			facts = append(facts, TeamsFact{Name: t.Label(), Value: strconv.Itoa(n)})
		}
	}

	sections := []TeamsSection{{
		ActivityTitle:    summary,
		ActivitySubtitle: subtitle(data),
		Facts:            facts,
		Markdown:         true,
	}}

	warnings, more := topWarnings(data, opts)
	if len(warnings) > 0 {
		lines := make([]string, 0, len(warnings)+1)
		for _, w := range warnings {
			lines = append(lines, "- "+warningLine(w))
		}
		if more > 0 {
			lines = append(lines, fmt.Sprintf("... and %d more", more))
		}
		sections = append(sections, TeamsSection{
			Title:    "Top warnings",
			Text:     strings.Join(lines, "\n\n"),
			Markdown: true,
		})
	}

	card := TeamsMessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: ThemeColor(data.SeverityCounts),
		Summary:    summary,
		Title:      reportTitle,
		Sections:   sections,
	}

	if url := strings.TrimSpace(data.DashboardURL); url != "" {
		card.PotentialAction = []TeamsAction{{
			Type:    "OpenUri",
			Name:    "View dashboard",
			Targets: []TeamsTarget{{OS: "default", URI: url}},
		}}
	}

	return card
}

// TeamsSimpleCard renders a plain titled message, used for connection probes.
func TeamsSimpleCard(title, text string) TeamsMessageCard {
	return TeamsMessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: ColorLow,
		Summary:    title,
		Title:      title,
		Sections:   []TeamsSection{{Text: text, Markdown: true}},
	}
}
