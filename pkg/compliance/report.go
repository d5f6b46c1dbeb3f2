package compliance

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stolostron/release-tools/pkg/api"
)

// csvHeader is the fixed column set of a compliance report. PromotionStatus
// is a single column even though its cell may contain a comma.
var csvHeader = []string{"Component", "BuildTimestamp", "PromotionStatus", "Hermetic", "EnterpriseContract", "MultiArch", "PushPipelineStatus", "DefinitionURL", "LogsURL"}

// WriteCSV writes a compliance report with a header and one row per
// component.
func WriteCSV(w io.Writer, records []api.ComplianceRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, record := range records {
		timestamp := ""
		if !record.BuildTimestamp.IsZero() {
			timestamp = record.BuildTimestamp.UTC().Format(time.RFC3339)
		}
		row := []string{
			record.Component,
			timestamp,
			record.PromotionStatus,
			strconv.FormatBool(record.Hermetic),
			strconv.FormatBool(record.ContractCompliant),
			strconv.FormatBool(record.MultiArch),
			record.PushPipelineStatus,
			record.DefinitionURL,
			record.LogsURL,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write report row for %s: %w", record.Component, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a report previously written by WriteCSV.
func ReadCSV(r io.Reader) ([]api.ComplianceRecord, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read report: %w", api.SentinelCSVError, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: report is empty", api.SentinelCSVError)
	}
	if len(rows[0]) != len(csvHeader) {
		return nil, fmt.Errorf("%s: report has %d columns, expected %d", api.SentinelCSVError, len(rows[0]), len(csvHeader))
	}
	var records []api.ComplianceRecord
	for _, row := range rows[1:] {
		record := api.ComplianceRecord{
			Component:          row[0],
			PromotionStatus:    row[2],
			PushPipelineStatus: row[6],
			DefinitionURL:      row[7],
			LogsURL:            row[8],
		}
		if row[1] != "" {
			timestamp, err := time.Parse(time.RFC3339, row[1])
			if err != nil {
				return nil, fmt.Errorf("%s: row for %s has a malformed timestamp %q: %w", api.SentinelCSVError, row[0], row[1], err)
			}
			record.BuildTimestamp = timestamp
		}
		record.Hermetic, _ = strconv.ParseBool(row[3])
		record.ContractCompliant, _ = strconv.ParseBool(row[4])
		record.MultiArch, _ = strconv.ParseBool(row[5])
		records = append(records, record)
	}
	return records, nil
}

// WriteJSON writes the report as a JSON array.
func WriteJSON(w io.Writer, records []api.ComplianceRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}
