package validation

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FF6B6B"))
	passStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#98FB98"))
)

// Table renders the report in its six-column tabular form:
// Status | Property | Expected | Actual | Classification | Severity.
// Severity shows as a bar of one pipe per point.
func (r *Report) Table(color bool) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(true).
		Headers("Status", "Property", "Expected", "Actual", "Classification", "Severity").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if !color || col != 0 || row < 0 || row >= len(r.Outcomes) {
				return cellStyle
			}
			if r.Outcomes[row].Status == Fail {
				return failStyle
			}
			return passStyle
		})

	for _, o := range r.Outcomes {
		t.Row(
			o.Status.String(),
			o.Property,
			o.Expected,
			o.Actual,
			o.Classification.String(),
			strings.Repeat("|", o.Severity),
		)
	}
	return t.String()
}

// JSON renders the report as an indented array of outcomes with the
// outcome field names verbatim.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
