package spreadsheet

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

// readXLSX loads every worksheet with raw cell values so that date cells surface as
// their serial numbers instead of a locale dependent rendering.
func readXLSX(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, NewGridSheet(name, rows))
	}
	return sheets, nil
}

// CellName converts 1-based coordinates to an A1 reference.
func CellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}

// ParseCellName converts an A1 reference to 1-based coordinates.
func ParseCellName(ref string) (col, row int, err error) {
	return excelize.CellNameToCoordinates(ref)
}

// ColumnNumber converts a column letter sequence (A, B, ..., AA) to its 1-based index.
func ColumnNumber(letters string) (int, error) {
	return excelize.ColumnNameToNumber(letters)
}
