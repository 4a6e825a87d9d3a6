package importer

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// requiredFields must all be present for a row to become a candidate record.
var requiredFields = []Field{FieldNationalID, FieldLastName, FieldFirstName}

var validate = validator.New()

// candidateKey carries the fields every candidate row must have.
type candidateKey struct {
	NationalID string `validate:"required"`
	LastName   string `validate:"required"`
	FirstName  string `validate:"required"`
}

var keyFieldByStructField = map[string]Field{
	"NationalID": FieldNationalID,
	"LastName":   FieldLastName,
	"FirstName":  FieldFirstName,
}

// RawRow is one non-blank worksheet row. Err is set when the row is only partially
// filled; such rows must not be reconciled.
type RawRow struct {
	Number int
	Values map[Field]string
	Err    *models.ValidationError
}

// Get returns the value for f, or "".
func (r RawRow) Get(f Field) string {
	return r.Values[f]
}

type boundColumn struct {
	Column
	index int
}

// Scanner walks the data rows of a sheet from a start row to the end of the used
// range. Like bufio.Scanner it is lazy and cannot be rewound.
type Scanner struct {
	sheet   spreadsheet.Sheet
	columns []boundColumn
	next    int
	last    int
	current RawRow
}

// NewScanner prepares a scan over sheet starting at startRow (1-based).
func NewScanner(sheet spreadsheet.Sheet, startRow int, columns Columns) (*Scanner, error) {
	if startRow < 1 {
		return nil, fmt.Errorf("start row must be positive, got %d", startRow)
	}
	bound := make([]boundColumn, 0, len(columns))
	for _, col := range columns {
		idx, err := spreadsheet.ColumnNumber(col.Letter)
		if err != nil {
			return nil, fmt.Errorf("column %s for %s: %w", col.Letter, col.Field, err)
		}
		bound = append(bound, boundColumn{Column: col, index: idx})
	}
	return &Scanner{sheet: sheet, columns: bound, next: startRow, last: sheet.MaxRow()}, nil
}

// Next advances to the next non-blank row. It returns false once the used range is exhausted.
func (s *Scanner) Next() bool {
	for s.next <= s.last {
		rowNum := s.next
		s.next++

		values := make(map[Field]string, len(s.columns))
		blank := true
		for _, col := range s.columns {
			v := cellAt(s.sheet, col.index, rowNum)
			if v != "" {
				blank = false
			}
			values[col.Field] = v
		}
		if blank {
			continue
		}
		s.current = RawRow{Number: rowNum, Values: values, Err: s.check(rowNum, values)}
		return true
	}
	s.current = RawRow{}
	return false
}

// Row returns the row produced by the last successful Next.
func (s *Scanner) Row() RawRow {
	return s.current
}

func (s *Scanner) check(rowNum int, values map[Field]string) *models.ValidationError {
	key := candidateKey{
		NationalID: values[FieldNationalID],
		LastName:   values[FieldLastName],
		FirstName:  values[FieldFirstName],
	}
	err := validate.Struct(key)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return &models.ValidationError{Row: rowNum, Message: err.Error()}
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, string(keyFieldByStructField[fe.StructField()]))
	}
	first := keyFieldByStructField[fieldErrs[0].StructField()]
	return &models.ValidationError{
		Row:     rowNum,
		Column:  s.letter(first),
		Message: "missing required field(s): " + strings.Join(missing, ", "),
		Value:   values[FieldNationalID],
	}
}

func (s *Scanner) letter(f Field) string {
	for _, col := range s.columns {
		if col.Field == f {
			return col.Letter
		}
	}
	return ""
}
