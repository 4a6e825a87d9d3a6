package importer

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// ProgressFunc receives progress notifications.
type ProgressFunc func(models.ImportProgress)

// progressReporter coalesces notifications and never lets the percentage go down.
type progressReporter struct {
	fn      ProgressFunc
	every   int
	now     func() time.Time
	started time.Time
	last    int
	pending int
}

func newProgressReporter(fn ProgressFunc, every int, now func() time.Time) *progressReporter {
	if every <= 0 {
		every = 1
	}
	return &progressReporter{fn: fn, every: every, now: now, started: now(), last: -1}
}

func (p *progressReporter) emit(percent int, status models.ImportJobStatus, message string, counts *models.ImportCounts, remaining *time.Duration) {
	if p.fn == nil {
		return
	}
	if percent < p.last {
		percent = p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.pending = 0
	var detail *models.ImportCounts
	if counts != nil {
		snapshot := *counts
		detail = &snapshot
	}
	p.fn(models.ImportProgress{Percent: percent, Status: status, Message: message, Remaining: remaining, Detail: detail})
}

// stage reports a phase change without advancing the row counter.
func (p *progressReporter) stage(message string, counts *models.ImportCounts) {
	p.emit(max(p.last, 0), models.ImportJobLoading, message, counts, nil)
}

// row is called after every processed row; it notifies every p.every rows.
func (p *progressReporter) row(counts *models.ImportCounts) {
	p.pending++
	if p.pending < p.every || counts.Processed >= counts.Total {
		return
	}
	percent := 0
	if counts.Total > 0 {
		percent = counts.Processed * 100 / counts.Total
	}
	if percent >= 100 {
		percent = 99
	}
	p.emit(percent, models.ImportJobLoading, fmt.Sprintf("Processed %d of %d rows", counts.Processed, counts.Total), counts, p.remaining(counts))
}

// finish always reports 100%.
func (p *progressReporter) finish(failed bool, message string, counts *models.ImportCounts) {
	status := models.ImportJobSuccess
	if failed {
		status = models.ImportJobError
	}
	zero := time.Duration(0)
	p.emit(100, status, message, counts, &zero)
}

func (p *progressReporter) remaining(counts *models.ImportCounts) *time.Duration {
	if counts.Processed == 0 || counts.Total <= counts.Processed {
		return nil
	}
	elapsed := p.now().Sub(p.started)
	perRow := elapsed / time.Duration(counts.Processed)
	eta := perRow * time.Duration(counts.Total-counts.Processed)
	return &eta
}
