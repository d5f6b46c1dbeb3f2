// Package vulnerability rolls scanner findings up by component. The input is
// the CSV produced from Conforma verification logs: one row per finding with
// the component, its severity and the CVE or advisory identifier.
package vulnerability

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/stolostron/release-tools/pkg/api"
)

// Record is one finding row of a vulnerability CSV.
type Record struct {
	Component     string
	ImageRef      string
	Term          string
	CVE           string
	SecurityLevel string
	Details       string
}

var requiredColumns = []string{"Component", "SecurityLevel"}

// ReadCSV parses a vulnerability CSV. The Component and SecurityLevel columns
// are required; the rest are optional so older files stay readable. Errors are
// prefixed with the CSV_ERROR sentinel so callers can surface them verbatim.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read the CSV header: %w", api.SentinelCSVError, err)
	}
	index := map[string]int{}
	for i, column := range header {
		index[strings.TrimSpace(column)] = i
	}
	for _, column := range requiredColumns {
		if _, ok := index[column]; !ok {
			return nil, fmt.Errorf("%s: missing column %s", api.SentinelCSVError, column)
		}
	}
	field := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: malformed row at line %d: %w", api.SentinelCSVError, line, err)
		}
		records = append(records, Record{
			Component:     field(row, "Component"),
			ImageRef:      field(row, "ImageRef"),
			Term:          field(row, "Term"),
			CVE:           field(row, "CVE"),
			SecurityLevel: strings.ToLower(field(row, "SecurityLevel")),
			Details:       field(row, "Details"),
		})
	}
	return records, nil
}

// ComponentSummary is the per-component roll-up of findings.
type ComponentSummary struct {
	Component string         `json:"component"`
	Counts    map[string]int `json:"counts"`
	CVEs      []string       `json:"cves,omitempty"`
	Terms     []string       `json:"terms,omitempty"`
}

// Critical and High are the counts the report sorts by.
func (s ComponentSummary) Critical() int { return s.Counts["critical"] }
func (s ComponentSummary) High() int     { return s.Counts["high"] }

// Total is the number of findings across the selected severities.
func (s ComponentSummary) Total() int {
	total := 0
	for _, count := range s.Counts {
		total += count
	}
	return total
}

// Summarize groups findings by component, keeping only the selected
// severities. Components come back sorted by critical count, then high count,
// descending, so the worst offenders lead the report.
func Summarize(records []Record, severities []string) []ComponentSummary {
	selected := map[string]bool{}
	for _, severity := range severities {
		selected[strings.ToLower(severity)] = true
	}
	byComponent := map[string]*ComponentSummary{}
	cves := map[string]map[string]bool{}
	terms := map[string]map[string]bool{}
	for _, record := range records {
		if !selected[record.SecurityLevel] {
			continue
		}
		summary, ok := byComponent[record.Component]
		if !ok {
			summary = &ComponentSummary{Component: record.Component, Counts: map[string]int{}}
			byComponent[record.Component] = summary
			cves[record.Component] = map[string]bool{}
			terms[record.Component] = map[string]bool{}
		}
		summary.Counts[record.SecurityLevel]++
		if record.CVE != "" {
			cves[record.Component][record.CVE] = true
		}
		if record.Term != "" {
			terms[record.Component][record.Term] = true
		}
	}
	summaries := make([]ComponentSummary, 0, len(byComponent))
	for component, summary := range byComponent {
		summary.CVEs = sortedKeys(cves[component])
		summary.Terms = sortedKeys(terms[component])
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Critical() != summaries[j].Critical() {
			return summaries[i].Critical() > summaries[j].Critical()
		}
		if summaries[i].High() != summaries[j].High() {
			return summaries[i].High() > summaries[j].High()
		}
		return summaries[i].Component < summaries[j].Component
	})
	return summaries
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// shownCVEs caps the per-component CVE listing in the summary view.
const shownCVEs = 5

// WriteText renders the summary table with a totals line.
func WriteText(w io.Writer, summaries []ComponentSummary, severities []string, showCVEs bool) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No vulnerabilities found matching the specified severity levels.")
		return err
	}
	totalCritical, totalHigh, total := 0, 0, 0
	for _, summary := range summaries {
		totalCritical += summary.Critical()
		totalHigh += summary.High()
		total += summary.Total()
	}
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "VULNERABILITY SUMMARY BY COMPONENT")
	fmt.Fprintln(w, rule)
	upper := make([]string, 0, len(severities))
	for _, severity := range severities {
		upper = append(upper, strings.ToUpper(severity))
	}
	fmt.Fprintf(w, "Severity Levels: %s\n", strings.Join(upper, ", "))
	fmt.Fprintf(w, "Total Components Affected: %d\n", len(summaries))
	fmt.Fprintf(w, "Total Vulnerabilities: %d (%d critical, %d high)\n", total, totalCritical, totalHigh)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-50s %10s %10s %10s\n", "Component", "Critical", "High", "Total")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, summary := range summaries {
		fmt.Fprintf(w, "%-50s %10d %10d %10d\n", summary.Component, summary.Critical(), summary.High(), summary.Total())
		if showCVEs && len(summary.CVEs) > 0 {
			shown := summary.CVEs
			if len(shown) > shownCVEs {
				shown = shown[:shownCVEs]
			}
			fmt.Fprintf(w, "  CVEs: %s\n", strings.Join(shown, ", "))
			if remaining := len(summary.CVEs) - shownCVEs; remaining > 0 {
				fmt.Fprintf(w, "        ... and %d more\n", remaining)
			}
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	_, err := fmt.Fprintf(w, "%-50s %10d %10d %10d\n", "TOTAL", totalCritical, totalHigh, total)
	return err
}

// WriteJSON renders the summaries as indented JSON.
func WriteJSON(w io.Writer, summaries []ComponentSummary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summaries)
}
