package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	"github.com/noah-isme/sma-roster-sync/internal/models"
)

func printSummary(w io.Writer, result *models.ImportResult, showLog bool) {
	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintf(w, "\n=== %s import", result.Variant)
	if result.DryRun {
		heading.Fprint(w, " (dry run)")
	}
	heading.Fprintln(w, " ===")

	state := color.New(color.FgGreen)
	if result.Failed() {
		state = color.New(color.FgRed)
	}
	state.Fprintf(w, "State: %s in %s\n", result.State, result.FinishedAt.Sub(result.StartedAt).Round(1e6))

	c := result.Counts
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Total", "Processed", "Created", "Updated", "Duplicates", "Errors"})
	table.Append([]string{
		strconv.Itoa(c.Total),
		strconv.Itoa(c.Processed),
		strconv.Itoa(c.Created),
		strconv.Itoa(c.Updated),
		strconv.Itoa(c.Duplicates),
		strconv.Itoa(c.Errors),
	})
	table.Render()

	if c.MobilityCreated+c.MobilityUpdated > 0 {
		fmt.Fprintf(w, "Mobility records: %d created, %d updated\n", c.MobilityCreated, c.MobilityUpdated)
	}

	if len(result.Levels) > 0 || len(result.Sections) > 0 {
		color.New(color.FgYellow).Fprintln(w, "\nLevels and sections")
		table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"Level", "Sections"})
		for _, level := range result.Levels {
			var names []string
			for _, s := range result.Sections {
				if s.Level == level {
					names = append(names, s.Name)
				}
			}
			table.Append([]string{level, strings.Join(names, ", ")})
		}
		table.Render()
	}

	if len(result.ValidationErrors) > 0 {
		color.New(color.FgYellow).Fprintf(w, "\nRejected rows (%d)\n", len(result.ValidationErrors))
		table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"File", "Sheet", "Row", "Column", "Problem"})
		for _, e := range result.ValidationErrors {
			table.Append([]string{e.File, e.Sheet, strconv.Itoa(e.Row), e.Column, e.Message})
		}
		table.Render()
	}

	for _, entry := range result.Log {
		switch {
		case entry.Level == models.LogError:
			color.New(color.FgRed).Fprintln(w, entry.Message)
		case showLog && entry.Level == models.LogWarning:
			color.New(color.FgYellow).Fprintln(w, entry.Message)
		case showLog:
			fmt.Fprintln(w, entry.Message)
		}
	}
}

func printVariants(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Variant", "Title", "Kind", "Columns"})
	for _, name := range importer.VariantNames() {
		v, err := importer.LookupVariant(name)
		if err != nil {
			continue
		}
		cols := make([]string, 0, len(v.Columns))
		for _, col := range v.Columns {
			cols = append(cols, col.Letter+"="+col.Header)
		}
		table.Append([]string{v.Name, v.Title, string(v.Kind), strings.Join(cols, " ")})
	}
	table.Render()
}

// progressLine rewrites a single stderr line with the latest progress event.
type progressLine struct {
	w    io.Writer
	last int
}

func newProgressLine(w io.Writer) *progressLine {
	return &progressLine{w: w, last: -1}
}

func (p *progressLine) update(ev models.ImportProgress) {
	if ev.Percent == p.last && ev.Status == models.ImportJobLoading {
		return
	}
	p.last = ev.Percent
	fmt.Fprintf(p.w, "\r[%3d%%] %-60s", ev.Percent, truncate(ev.Message, 60))
}

func (p *progressLine) done() {
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
