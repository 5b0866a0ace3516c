// Package billing holds the pure bookkeeping behind a billing report: the
// billing period boundaries, tag parsing, record deduplication and refresh
// merging, and the aggregates rendered on the summary sheet.
package billing

import (
	"fmt"
	"time"
)

// DateLayout is the Cost Explorer date format used throughout the workbook.
const DateLayout = "2006-01-02"

// Period is the billing window a report covers. End is exclusive, matching
// the Cost Explorer TimePeriod semantics.
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodFor returns the billing period for a report generated on today.
//
// On the first day of a month the report covers the whole previous month;
// on any other day it covers the current month up to, and excluding, today.
func PeriodFor(today time.Time) Period {
	t := today.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	target := day
	if day.Day() == 1 {
		target = day.AddDate(0, 0, -1)
	}
	return Period{
		Start: time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC),
		End:   day,
	}
}

// ParseReportDate parses a --date override. Dates after now are rejected
// because Cost Explorer cannot report on them.
func ParseReportDate(s string, now time.Time) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %q: %w", s, err)
	}
	if d.After(now.UTC()) {
		return time.Time{}, fmt.Errorf("report date %s is in the future", s)
	}
	return d, nil
}

// Month returns the target month as YYYYMM.
func (p Period) Month() string {
	return p.Start.Format("200601")
}

// Title returns the target month as used in the summary heading, e.g. 2026年10月.
func (p Period) Title() string {
	return fmt.Sprintf("%d年%02d月", p.Start.Year(), int(p.Start.Month()))
}

// StartString formats Start as YYYY-MM-DD.
func (p Period) StartString() string { return p.Start.Format(DateLayout) }

// EndString formats End as YYYY-MM-DD.
func (p Period) EndString() string { return p.End.Format(DateLayout) }

// Contains reports whether the YYYY-MM-DD date lies in [Start, End).
// Unparsable dates are never contained.
func (p Period) Contains(date string) bool {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return !d.Before(p.Start) && d.Before(p.End)
}

// Days returns every date in the period, ascending.
func (p Period) Days() []string {
	var days []string
	for d := p.Start; d.Before(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// Empty reports whether the period contains no days.
func (p Period) Empty() bool {
	return !p.Start.Before(p.End)
}
