package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tier0/internal/models"
)

// Workbook sheet names.
const (
	sheetSummary  = "Summary"
	sheetRejected = "Rejected"
	sheetDropped  = "Dropped"
)

// XLSX renders the summary as a workbook with a Summary sheet and a
// Rejected sheet holding one row per rejected entity. A Dropped sheet is
// added when source rows were dropped before validation.
func XLSX(s *Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetSummary); err != nil {
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}

	summary := [][]any{
		{"generated_at", s.GeneratedAt.UTC().Format(time.RFC3339)},
		{"run_id", s.RunID},
		{"source_records", s.Records},
		{"firms_accepted", s.Counts.FirmsAccepted},
		{"firms_rejected", s.Counts.FirmsRejected},
		{"offices_accepted", s.Counts.OfficesAccepted},
		{"offices_rejected", s.Counts.OfficesRejected},
		{"overall_digest", s.OverallDigest},
		{"signed", s.Signed},
		{"dropped_rows", len(s.Dropped)},
	}

	for r, row := range summary {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheetSummary, cell, v)
		}
	}

	if _, err := f.NewSheet(sheetRejected); err != nil {
		return nil, fmt.Errorf("creating rejected sheet: %w", err)
	}

	headers := []string{"kind", "key", "reason_count", "reasons"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetRejected, cell, h)
	}

	for i, v := range s.Rejected() {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheetRejected, cell, value)
		}

		set(1, string(v.Kind))
		set(2, v.Key)
		set(3, len(v.Reasons))
		set(4, strings.Join(v.Reasons, "\n"))
	}

	if len(s.Dropped) > 0 {
		if _, err := f.NewSheet(sheetDropped); err != nil {
			return nil, fmt.Errorf("creating dropped sheet: %w", err)
		}

		for i, row := range append([]models.DroppedRow{{Location: "location", Reason: "reason"}}, s.Dropped...) {
			loc, _ := excelize.CoordinatesToCellName(1, i+1)
			reason, _ := excelize.CoordinatesToCellName(2, i+1)
			_ = f.SetCellValue(sheetDropped, loc, row.Location)
			_ = f.SetCellValue(sheetDropped, reason, row.Reason)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}

	return buf.Bytes(), nil
}
