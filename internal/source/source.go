// Package source reads register extracts into raw firm records.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tier0/internal/models"
)

// Extract formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Source errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported extract format")
	ErrMalformedExtract  = errors.New("malformed register extract")
)

// Extract is one register snapshot as read from disk.
type Extract struct {
	Format string
	// Count is the record count the extract declares, or -1 when absent.
	Count int
	Firms []models.RawFirm
	// Dropped lists rows that could not be attached to a firm.
	Dropped []models.DroppedRow
	raw     []byte
}

// CountMismatch reports whether a declared count disagrees with the records.
func (e *Extract) CountMismatch() bool {
	return e.Count >= 0 && e.Count != len(e.Firms)
}

// ReadFile reads a JSON (.json, .txt) or XLSX (.xlsx) register extract.
func ReadFile(path string) (*Extract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extract: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".txt":
		return ParseJSON(data)
	case ".xlsx":
		return ParseXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseJSON decodes the organisation search response
// {"Count": N, "Organisations": [...]}. Scalars are kept as their source
// text; null values are treated as absent.
func ParseJSON(data []byte) (*Extract, error) {
	var doc struct {
		Count         *json.Number     `json:"Count"`
		Organisations []map[string]any `json:"Organisations"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExtract, err)
	}

	ext := &Extract{Format: FormatJSON, Count: -1, raw: data}

	if doc.Count != nil {
		n, err := doc.Count.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: Count: %w", ErrMalformedExtract, err)
		}

		ext.Count = int(n)
	}

	for i, org := range doc.Organisations {
		firm := models.RawFirm{Fields: flatten(org)}
		firmID := firm.Fields.Get(models.FieldID)

		switch offices := org["Offices"].(type) {
		case nil:
		case []any:
			for j, item := range offices {
				office, ok := item.(map[string]any)
				if !ok {
					ext.drop(fmt.Sprintf("Organisations[%d].Offices[%d]", i, j), fmt.Sprintf("office entry is %s, not an object", jsonKind(item)))
					continue
				}

				firm.Offices = append(firm.Offices, models.RawOffice{Fields: flatten(office), FirmID: firmID})
			}
		default:
			ext.drop(fmt.Sprintf("Organisations[%d].Offices", i), fmt.Sprintf("Offices is %s, not an array", jsonKind(offices)))
		}

		ext.Firms = append(ext.Firms, firm)
	}

	return ext, nil
}

func (e *Extract) drop(location, reason string) {
	e.Dropped = append(e.Dropped, models.DroppedRow{Location: location, Reason: reason})
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	default:
		return "an object"
	}
}

// flatten keeps the scalar members of obj as text.
func flatten(obj map[string]any) models.Fields {
	fields := make(models.Fields, len(obj))

	for k, v := range obj {
		switch x := v.(type) {
		case string:
			fields[k] = x
		case json.Number:
			fields[k] = x.String()
		case bool:
			fields[k] = strconv.FormatBool(x)
		}
	}

	return fields
}

// RawCopyName is the audit copy file name for a snapshot taken on day.
func RawCopyName(day time.Time) string {
	return "sra-" + day.UTC().Format("20060102") + ".json"
}

// RawJSON is the audit copy of the extract: the input bytes for JSON
// extracts, and the equivalent register JSON for workbooks.
func (e *Extract) RawJSON() ([]byte, error) {
	if e.Format == FormatJSON {
		return e.raw, nil
	}

	type office map[string]any

	orgs := make([]map[string]any, 0, len(e.Firms))

	for _, f := range e.Firms {
		org := make(map[string]any, len(f.Fields)+1)
		for k, v := range f.Fields {
			org[k] = v
		}

		offices := make([]office, 0, len(f.Offices))
		for _, o := range f.Offices {
			row := make(office, len(o.Fields))
			for k, v := range o.Fields {
				row[k] = v
			}

			offices = append(offices, row)
		}

		org["Offices"] = offices
		orgs = append(orgs, org)
	}

	data, err := json.MarshalIndent(map[string]any{"Count": len(e.Firms), "Organisations": orgs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding raw copy: %w", err)
	}

	return append(data, '\n'), nil
}
