package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"tier0/internal/models"
)

// Workbook sheet names.
const (
	SheetOrganisations = "Organisations"
	SheetOffices       = "Offices"
)

// ParseXLSX reads a workbook with an Organisations sheet and an optional
// Offices sheet. The first row of each sheet holds the field names; office
// rows are attached to firms through the FirmId column.
func ParseXLSX(data []byte) (*Extract, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExtract, err)
	}
	defer f.Close()

	orgRows, err := sheetRecords(f, SheetOrganisations)
	if err != nil {
		return nil, err
	}

	if orgRows == nil {
		return nil, fmt.Errorf("%w: sheet %q not found", ErrMalformedExtract, SheetOrganisations)
	}

	officeRows, err := sheetRecords(f, SheetOffices)
	if err != nil {
		return nil, err
	}

	ext := &Extract{Format: FormatXLSX, Count: -1}
	byID := make(map[string]int, len(orgRows))

	for _, row := range orgRows {
		if id := strings.TrimSpace(row.Get(models.FieldID)); id != "" {
			if _, dup := byID[id]; !dup {
				byID[id] = len(ext.Firms)
			}
		}

		ext.Firms = append(ext.Firms, models.RawFirm{Fields: row})
	}

	for i, row := range officeRows {
		firmID := strings.TrimSpace(row.Get(models.FieldFirmID))

		idx, ok := byID[firmID]
		if !ok {
			ext.drop(fmt.Sprintf("%s[%d]", SheetOffices, i), fmt.Sprintf("FirmId %q matches no organisation", firmID))
			continue
		}

		delete(row, models.FieldFirmID)
		ext.Firms[idx].Offices = append(ext.Firms[idx].Offices, models.RawOffice{Fields: row, FirmID: firmID})
	}

	return ext, nil
}

// sheetRecords returns the data rows of sheet keyed by header. It returns
// nil without error when the sheet does not exist.
func sheetRecords(f *excelize.File, sheet string) ([]models.Fields, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %w", ErrMalformedExtract, sheet, err)
	}

	if len(rows) == 0 {
		return []models.Fields{}, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	out := make([]models.Fields, 0, len(rows)-1)

	for _, row := range rows[1:] {
		fields := make(models.Fields, len(header))
		blank := true

		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}

			if strings.TrimSpace(cell) != "" {
				blank = false
			}

			fields[header[i]] = cell
		}

		if !blank {
			out = append(out, fields)
		}
	}

	return out, nil
}
