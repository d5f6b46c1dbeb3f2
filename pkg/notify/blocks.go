package notify

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/stolostron/release-tools/pkg/api"
)

var healthEmoji = map[Health]string{
	HealthHealthy: ":white_check_mark:",
	HealthPartial: ":warning:",
	HealthFailed:  ":red_circle:",
}

// Blocks renders a scan report as Slack Block Kit blocks: a header, one
// section per release, and a context block with the scan timestamp.
func Blocks(report *Report) []slack.Block {
	blocks := []slack.Block{
		&slack.HeaderBlock{
			Type: slack.MBTHeader,
			Text: &slack.TextBlockObject{
				Type: slack.PlainTextType,
				Text: fmt.Sprintf("Konflux Build Health: %d/%d healthy", report.Healthy(), len(report.Releases)),
			},
		},
	}
	for i := range report.Releases {
		blocks = append(blocks, releaseBlock(&report.Releases[i]))
	}
	if len(report.StaleNudgeBranches) > 0 {
		blocks = append(blocks, nudgeBlock(report))
	}
	blocks = append(blocks, &slack.ContextBlock{
		Type: slack.MBTContext,
		ContextElements: slack.ContextElements{
			Elements: []slack.MixedElement{
				&slack.TextBlockObject{
					Type: slack.MarkdownType,
					Text: fmt.Sprintf("Scanned at %s", report.Timestamp.Format("2006-01-02 15:04:05 MST")),
				},
			},
		},
	})
	return blocks
}

func releaseBlock(release *ReleaseReport) slack.Block {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s *%s* (%s %s)", healthEmoji[release.Health], release.Release.Application, strings.ToUpper(string(release.Release.Product)), release.Release.Version))
	if release.Error != "" {
		lines = append(lines, fmt.Sprintf("scan error: %s", release.Error))
		return sectionBlock(strings.Join(lines, "\n"))
	}

	ready, total := 0, len(release.Components)
	var failing []string
	for _, component := range release.Components {
		if component.Ready() {
			ready++
		}
		if component.PushFailureMessage != "" {
			failing = append(failing, component.Name)
		}
	}
	lines = append(lines, fmt.Sprintf("components: %d/%d ready", ready, total))
	if len(failing) > 0 {
		lines = append(lines, fmt.Sprintf("failing push pipelines: %s", strings.Join(failing, ", ")))
	}
	lines = append(lines, fmt.Sprintf("dev release: %s", pipelineSummary(release.Development)))
	lines = append(lines, fmt.Sprintf("stage release: %s", pipelineSummary(release.Stage)))
	lines = append(lines, fmt.Sprintf("bundle: %s", bundleSummary(release.Bundle)))
	lines = append(lines, fmt.Sprintf("catalog: %s", catalogSummary(release.Catalog)))
	return sectionBlock(strings.Join(lines, "\n"))
}

func pipelineSummary(state PipelineState) string {
	summary := state.Current
	if state.Progressing && state.Previous != nil {
		summary = fmt.Sprintf("%s (previous: %s)", summary, state.Previous.Status)
	}
	if state.Current != api.StatusSucceeded && state.Message != "" {
		summary = fmt.Sprintf("%s: %s", summary, truncate(state.Message, 120))
	}
	return summary
}

func bundleSummary(state BundleState) string {
	switch {
	case state.Error != "":
		return fmt.Sprintf("inaccessible (%s)", truncate(state.Error, 120))
	case state.HasRecentVersionTag:
		return fmt.Sprintf("up to date (%s)", state.NewestVersionTag)
	case state.NewestVersionTag != "":
		return fmt.Sprintf("lagging (newest tag %s)", state.NewestVersionTag)
	default:
		return "no version tag found"
	}
}

func catalogSummary(state CatalogState) string {
	switch {
	case state.Error != "":
		return fmt.Sprintf("inaccessible (%s)", truncate(state.Error, 120))
	case state.HasDownstream:
		return fmt.Sprintf("downstream tags: %s", strings.Join(state.DownstreamTags, ", "))
	default:
		return "no downstream tags"
	}
}

func nudgeBlock(report *Report) slack.Block {
	lines := []string{":hourglass: *Stale nudge branches*"}
	for _, branch := range report.StaleNudgeBranches {
		lines = append(lines, fmt.Sprintf("%s (open for %s)", branch.Name, branch.Age))
	}
	return sectionBlock(strings.Join(lines, "\n"))
}

func sectionBlock(text string) slack.Block {
	return &slack.SectionBlock{
		Type: slack.MBTSection,
		Text: &slack.TextBlockObject{
			Type: slack.MarkdownType,
			Text: text,
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

type slackPoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Post sends the report to a Slack channel.
func Post(client slackPoster, channel string, report *Report, logger *logrus.Entry) error {
	fallback := fmt.Sprintf("Konflux build health: %d/%d releases healthy.", report.Healthy(), len(report.Releases))
	responseChannel, responseTimestamp, err := client.PostMessage(channel, slack.MsgOptionText(fallback, false), slack.MsgOptionBlocks(Blocks(report)...))
	if err != nil {
		return fmt.Errorf("failed to post to channel %s: %w", channel, err)
	}
	logger.Infof("Posted build health report in channel %s at %s", responseChannel, responseTimestamp)
	return nil
}
