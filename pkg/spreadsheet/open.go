package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when the payload is neither an OOXML nor a BIFF workbook.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Open decodes a workbook from memory. The format is sniffed from the payload and
// the file name extension is only used when the payload is ambiguous.
func Open(name string, data []byte) (*Workbook, error) {
	format, err := Detect(name, data)
	if err != nil {
		return nil, err
	}
	var sheets []Sheet
	switch format {
	case FormatXLSX:
		sheets, err = readXLSX(data)
	case FormatXLS:
		sheets, err = readXLS(data)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s workbook %q: %w", format, name, err)
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %q has no sheets", name)
	}
	return &Workbook{Name: name, Format: format, Sheets: sheets}, nil
}

// OpenFile reads and decodes a workbook from disk.
func OpenFile(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", path, err)
	}
	return Open(filepath.Base(path), data)
}

// Detect resolves the workbook format.
func Detect(name string, data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS, nil
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file %q", ErrUnsupportedFormat, name)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// IsSpreadsheetName reports whether the file name carries a supported extension.
func IsSpreadsheetName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}
