package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders datasets as a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the title on row 1, subtitles below it and the table after a blank row.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	row := 1
	if data.Title != "" {
		if err := setCell(f, 1, row, data.Title, bold); err != nil {
			return nil, err
		}
		row++
	}
	for _, line := range data.Subtitle {
		if err := setCell(f, 1, row, line, 0); err != nil {
			return nil, err
		}
		row++
	}
	if row > 1 {
		row++
	}
	for i, h := range data.Headers {
		if err := setCell(f, i+1, row, h, bold); err != nil {
			return nil, err
		}
	}
	for _, r := range data.Rows {
		row++
		for i, v := range data.record(r) {
			if err := setCell(f, i+1, row, v, 0); err != nil {
				return nil, err
			}
		}
	}
	return write(f)
}

// TemplateCell is a labelled cell of a template's metadata block.
type TemplateCell struct {
	LabelRef string
	Label    string
	ValueRef string
	Value    string
}

// TemplateColumn is one header of a template's data table.
type TemplateColumn struct {
	Letter string
	Title  string
}

// Template describes a blank import workbook.
type Template struct {
	Title     string
	Metadata  []TemplateCell
	HeaderRow int
	Columns   []TemplateColumn
}

// RenderTemplate writes a blank workbook users can fill in and upload back.
func RenderTemplate(t Template) ([]byte, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("template requires at least one column")
	}
	if t.HeaderRow < 1 {
		return nil, fmt.Errorf("template header row must be positive")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	bold, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if t.Title != "" {
		if err := f.SetCellValue(defaultSheet, "A1", t.Title); err != nil {
			return nil, fmt.Errorf("write title: %w", err)
		}
		if err := f.SetCellStyle(defaultSheet, "A1", "A1", bold); err != nil {
			return nil, fmt.Errorf("style title: %w", err)
		}
	}
	for _, m := range t.Metadata {
		if m.LabelRef != "" {
			if err := f.SetCellValue(defaultSheet, m.LabelRef, m.Label); err != nil {
				return nil, fmt.Errorf("write %s: %w", m.LabelRef, err)
			}
		}
		if m.ValueRef != "" && m.Value != "" {
			if err := f.SetCellValue(defaultSheet, m.ValueRef, m.Value); err != nil {
				return nil, fmt.Errorf("write %s: %w", m.ValueRef, err)
			}
		}
	}
	for _, col := range t.Columns {
		n, err := excelize.ColumnNameToNumber(col.Letter)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Letter, err)
		}
		if err := setCell(f, n, t.HeaderRow, col.Title, bold); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(defaultSheet, col.Letter, col.Letter, 20); err != nil {
			return nil, fmt.Errorf("size column %s: %w", col.Letter, err)
		}
	}
	return write(f)
}

func setCell(f *excelize.File, col, row int, value string, style int) error {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell (%d,%d): %w", col, row, err)
	}
	if err := f.SetCellValue(defaultSheet, ref, value); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	if style != 0 {
		if err := f.SetCellStyle(defaultSheet, ref, ref, style); err != nil {
			return fmt.Errorf("style %s: %w", ref, err)
		}
	}
	return nil
}

func write(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
