// Package spreadsheet loads workbooks into a uniform, read-only grid of cell strings
// regardless of the underlying file format.
package spreadsheet

import (
	"strings"
)

// Sheet is a read-only view over one worksheet. Coordinates are 1-based.
type Sheet interface {
	Name() string
	// Cell returns the raw textual value at (col, row) and whether the cell exists.
	Cell(col, row int) (string, bool)
	// MaxRow is the last row of the used range, or 0 for an empty sheet.
	MaxRow() int
}

// Workbook is a loaded spreadsheet file.
type Workbook struct {
	Name   string
	Format Format
	Sheets []Sheet
}

// Format identifies the container a workbook was decoded from.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatGrid Format = "grid"
)

type gridSheet struct {
	name string
	rows [][]string
}

// NewGridSheet wraps pre-extracted rows. Row i of the slice is worksheet row i+1.
func NewGridSheet(name string, rows [][]string) Sheet {
	return &gridSheet{name: name, rows: trimTrailingBlankRows(rows)}
}

func (s *gridSheet) Name() string { return s.name }

func (s *gridSheet) Cell(col, row int) (string, bool) {
	if row < 1 || row > len(s.rows) || col < 1 {
		return "", false
	}
	cells := s.rows[row-1]
	if col > len(cells) {
		return "", false
	}
	return cells[col-1], true
}

func (s *gridSheet) MaxRow() int { return len(s.rows) }

func trimTrailingBlankRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && blankRow(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
