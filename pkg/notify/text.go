package notify

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteText renders a scan report as a human-readable console report.
func WriteText(w io.Writer, report *Report) error {
	if _, err := fmt.Fprintf(w, "Konflux build health as of %s: %d/%d releases healthy\n\n",
		report.Timestamp.Format("2006-01-02 15:04:05 MST"), report.Healthy(), len(report.Releases)); err != nil {
		return err
	}
	for i := range report.Releases {
		if err := writeRelease(w, &report.Releases[i]); err != nil {
			return err
		}
	}
	if len(report.StaleNudgeBranches) > 0 {
		if _, err := fmt.Fprintln(w, "Stale nudge branches:"); err != nil {
			return err
		}
		for _, branch := range report.StaleNudgeBranches {
			if _, err := fmt.Fprintf(w, "  %s (open for %s)\n", branch.Name, branch.Age); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRelease(w io.Writer, release *ReleaseReport) error {
	if _, err := fmt.Fprintf(w, "%s (%s %s): %s\n", release.Release.Application,
		strings.ToUpper(string(release.Release.Product)), release.Release.Version, release.Health); err != nil {
		return err
	}
	if release.Error != "" {
		_, err := fmt.Fprintf(w, "  scan error: %s\n\n", release.Error)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, component := range release.Components {
		state := "ready"
		switch {
		case component.LastPromotedImage == "":
			state = "no promoted image"
		case component.Stale:
			state = "stale"
		}
		if component.PushFailureMessage != "" {
			state = state + ", push failing"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", component.Name, state)
	}
	fmt.Fprintf(tw, "  dev release\t%s\n", pipelineSummary(release.Development))
	fmt.Fprintf(tw, "  stage release\t%s\n", pipelineSummary(release.Stage))
	fmt.Fprintf(tw, "  bundle\t%s\n", bundleSummary(release.Bundle))
	fmt.Fprintf(tw, "  catalog\t%s\n", catalogSummary(release.Catalog))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
