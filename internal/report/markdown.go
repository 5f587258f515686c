// Package report renders validation outcomes and normalized snapshots.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tier0/internal/models"
)

// Summary is what a run reports about its validation stage.
type Summary struct {
	RunID         string
	GeneratedAt   time.Time
	Records       int
	Dropped       []models.DroppedRow
	Counts        models.Counts
	Verdicts      []models.Verdict
	OverallDigest string
	Signed        bool
}

// Rejected returns the rejected verdicts in stage order.
func (s *Summary) Rejected() []models.Verdict {
	var out []models.Verdict

	for _, v := range s.Verdicts {
		if !v.Accepted {
			out = append(out, v)
		}
	}

	return out
}

// Markdown renders the summary as a markdown document.
func Markdown(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Validation report\n\n")

	metrics := [][]string{
		{"Generated", s.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Source records", strconv.Itoa(s.Records)},
		{"Dropped rows", strconv.Itoa(len(s.Dropped))},
		{"Firms accepted", strconv.Itoa(s.Counts.FirmsAccepted)},
		{"Firms rejected", strconv.Itoa(s.Counts.FirmsRejected)},
		{"Offices accepted", strconv.Itoa(s.Counts.OfficesAccepted)},
		{"Offices rejected", strconv.Itoa(s.Counts.OfficesRejected)},
	}

	if s.RunID != "" {
		metrics = append([][]string{{"Run", s.RunID}}, metrics...)
	}

	if s.OverallDigest != "" {
		signed := "no"
		if s.Signed {
			signed = "yes"
		}

		metrics = append(metrics, []string{"Overall digest", s.OverallDigest}, []string{"Signed", signed})
	}

	writeLines(&b, Table([]string{"Metric", "Value"}, metrics))

	if len(s.Dropped) > 0 {
		fmt.Fprintf(&b, "\n## Dropped source rows (%d)\n\n", len(s.Dropped))

		rows := make([][]string, 0, len(s.Dropped))
		for _, d := range s.Dropped {
			rows = append(rows, []string{d.Location, d.Reason})
		}

		writeLines(&b, Table([]string{"Location", "Reason"}, rows))
	}

	rejected := s.Rejected()

	fmt.Fprintf(&b, "\n## Rejected entities (%d)\n\n", len(rejected))

	if len(rejected) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}

	rows := make([][]string, 0, len(rejected))
	for _, v := range rejected {
		rows = append(rows, []string{string(v.Kind), v.Key, strings.Join(v.Reasons, "; ")})
	}

	writeLines(&b, Table([]string{"Kind", "Key", "Reasons"}, rows))

	return b.String()
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}
