package report

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-intake/internal/badge"
	"github.com/sells-group/lead-intake/internal/lead"
)

// Sheet names and the currency format of the premium column.
const (
	SummarySheet   = "Summary"
	NumbersSheet   = "AllNumbers"
	CurrencyFormat = "$#,##0.00;[Red]-$#,##0.00;$0.00"
)

// SummaryHeaders are the Summary sheet columns.
var SummaryHeaders = []string{"Badge", "Lead", "Total Premium", "Listed #'s", "+ Policy #'s"}

// NumbersHeaders are the AllNumbers sheet columns, valid pair first.
var NumbersHeaders = []string{"Lead", "Phone", "Lead", "Phone", "Flag"}

const (
	colorHeader = "FFD9EAF7"
	colorGreen  = "FFE8F5E9"
)

var rowColors = map[string]string{
	Glyph(badge.Star):   "FFFFF4CC",
	Glyph(badge.Red):    "FFFDEAEA",
	Glyph(badge.Purple): "FFF3E8FD",
	Glyph(badge.Orange): "FFFFF1E6",
}

// WriteWorkbook renders summaries as an xlsx workbook to w.
func WriteWorkbook(w io.Writer, summaries []lead.Summary) error {
	f, err := Workbook(Build(summaries))
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

// WriteFile writes the workbook to path, creating parent directories.
func WriteFile(path string, summaries []lead.Summary) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "report: create %s", dir)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := WriteWorkbook(out, summaries); err != nil {
		_ = out.Close()
		return err
	}
	return eris.Wrap(out.Close(), "report: close workbook")
}

// Workbook lays rows out on the Summary and AllNumbers sheets.
func Workbook(rows Rows) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}
	header := summary.AddRow()
	for _, h := range SummaryHeaders {
		c := header.AddCell()
		c.SetString(h)
		c.SetStyle(headerStyle())
	}
	for _, r := range rows.Summary {
		row := summary.AddRow()
		row.AddCell().SetString(r.Badge)
		row.AddCell().SetString(r.Lead)
		row.AddCell().SetFloatWithFormat(r.TotalPremium.InexactFloat64(), CurrencyFormat)
		row.AddCell().SetInt(r.ListedCount)
		row.AddCell().SetInt(r.PolicyCount)

		// Leads with extra policy numbers are highlighted over their badge tint.
		color := rowColors[r.Badge]
		if r.PolicyCount > 0 {
			color = colorGreen
		}
		if color != "" {
			st := fillStyle(color)
			for _, c := range row.Cells {
				c.SetStyle(st)
			}
		}
	}

	numbers, err := f.AddSheet(NumbersSheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add numbers sheet")
	}
	section := numbers.AddRow()
	for i, title := range []string{"Valid Numbers", "", "Flagged Numbers", "", ""} {
		c := section.AddCell()
		c.SetString(title)
		c.SetStyle(headerStyle())
		switch i {
		case 0:
			c.Merge(1, 0)
		case 2:
			c.Merge(2, 0)
		}
	}
	sub := numbers.AddRow()
	for _, h := range NumbersHeaders {
		c := sub.AddCell()
		c.SetString(h)
		c.SetStyle(headerStyle())
	}

	n := max(len(rows.Valid), len(rows.Flagged))
	for i := 0; i < n; i++ {
		row := numbers.AddRow()
		cells := make([]string, 5)
		if i < len(rows.Valid) {
			cells[0], cells[1] = rows.Valid[i].Lead, rows.Valid[i].Phone
		}
		if i < len(rows.Flagged) {
			cells[2], cells[3], cells[4] = rows.Flagged[i].Lead, rows.Flagged[i].Phone, rows.Flagged[i].Flag
		}
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	return f, nil
}

func headerStyle() *xlsx.Style {
	st := fillStyle(colorHeader)
	st.Font.Bold = true
	st.ApplyFont = true
	st.Alignment.Horizontal = "center"
	st.ApplyAlignment = true
	return st
}

func fillStyle(color string) *xlsx.Style {
	st := xlsx.NewStyle()
	st.Fill = *xlsx.NewFill("solid", color, color)
	st.ApplyFill = true
	return st
}
