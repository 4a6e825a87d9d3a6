// Package export renders tabular class lists and import templates.
package export

import "fmt"

// Dataset is a titled table. Rows are keyed by header text.
type Dataset struct {
	Title string
	// Subtitle lines are printed under the title (institution, level, year).
	Subtitle []string
	Headers  []string
	Rows     []map[string]string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}
