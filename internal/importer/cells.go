package importer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// Value returns the trimmed content of the cell at address, or "" when the cell is
// absent, empty, or the address is malformed.
func Value(sheet spreadsheet.Sheet, address string) string {
	if sheet == nil || address == "" {
		return ""
	}
	col, row, err := spreadsheet.ParseCellName(address)
	if err != nil {
		return ""
	}
	return cellAt(sheet, col, row)
}

func cellAt(sheet spreadsheet.Sheet, col, row int) string {
	raw, ok := sheet.Cell(col, row)
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
}

// Metadata is the header block of a worksheet.
type Metadata struct {
	Region       string `json:"region"`
	Directorate  string `json:"directorate"`
	LevelCode    string `json:"level_code"`
	Level        string `json:"level"`
	Section      string `json:"section"`
	Municipality string `json:"municipality"`
	Institution  string `json:"institution"`
	AcademicYear string `json:"academic_year"`
}

// ReadMetadata extracts the header block. Missing cells surface as empty strings.
func ReadMetadata(sheet spreadsheet.Sheet, cells MetadataCells, levels LevelCatalog) Metadata {
	md := Metadata{
		Region:       Value(sheet, cells.Region),
		Directorate:  Value(sheet, cells.Directorate),
		LevelCode:    Value(sheet, cells.LevelCode),
		Section:      Value(sheet, cells.Section),
		Municipality: Value(sheet, cells.Municipality),
		Institution:  Value(sheet, cells.Institution),
		AcademicYear: NormalizeAcademicYear(Value(sheet, cells.AcademicYear)),
	}
	if md.LevelCode != "" {
		if levels == nil {
			levels = DefaultLevelCatalog
		}
		md.Level = levels.Name(md.LevelCode)
	}
	return md
}

var academicYearPattern = regexp.MustCompile(`^(\d{4})\s*[/\-–]\s*(\d{4})$`)

// NormalizeAcademicYear rewrites "2025-2026" and "2025 / 2026" as "2025/2026".
// Values that do not look like a year pair are returned trimmed and unchanged.
func NormalizeAcademicYear(raw string) string {
	raw = strings.TrimSpace(raw)
	m := academicYearPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	return m[1] + "/" + m[2]
}

// ValidAcademicYear reports whether raw has the YYYY/YYYY form with consecutive years.
func ValidAcademicYear(raw string) bool {
	m := academicYearPattern.FindStringSubmatch(raw)
	if m == nil {
		return false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	return end-start == 1
}
