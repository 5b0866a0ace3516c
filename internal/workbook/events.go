package workbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// EventTimeLayout is the format of the time column on the events sheet (UTC).
const EventTimeLayout = "2006-01-02 15:04:05"

// ExistingEvents parses the events sheet. Rows without an event ID or with
// an unparsable time are skipped and counted.
func (w *Workbook) ExistingEvents() ([]models.InstanceEvent, int, error) {
	rows, err := w.rows(EventsSheet)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) < 2 {
		return nil, 0, nil
	}

	var (
		events  []models.InstanceEvent
		skipped int
	)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		at, err := time.ParseInLocation(EventTimeLayout, strings.TrimSpace(cellValue(row, 0)), time.UTC)
		id := strings.TrimSpace(cellValue(row, 5))
		if err != nil || id == "" {
			skipped++
			continue
		}
		var instances []string
		for _, s := range strings.Split(cellValue(row, 4), ",") {
			if s = strings.TrimSpace(s); s != "" {
				instances = append(instances, s)
			}
		}
		events = append(events, models.InstanceEvent{
			EventID:     id,
			EventTime:   at,
			Region:      cellValue(row, 1),
			EventName:   cellValue(row, 2),
			Username:    cellValue(row, 3),
			InstanceIDs: instances,
		})
	}
	return events, skipped, nil
}

// WriteEvents merges events into the events sheet. Rows already on the sheet
// are kept unless an event with the same ID is in events, which replaces
// them. It returns the number of rows written.
func (w *Workbook) WriteEvents(events []models.InstanceEvent) (int, error) {
	existing, _, err := w.ExistingEvents()
	if err != nil {
		return 0, err
	}
	merged := billing.DedupEvents(append(existing, events...))

	if _, err := w.ensureSheet(EventsSheet); err != nil {
		return 0, err
	}
	body := make([][]any, len(merged))
	for i, e := range merged {
		body[i] = []any{
			e.EventTime.UTC().Format(EventTimeLayout),
			e.Region,
			e.EventName,
			e.Username,
			strings.Join(e.InstanceIDs, ","),
			e.EventID,
		}
	}
	if err := w.writeTable(EventsSheet, eventHeaders, body); err != nil {
		return 0, err
	}

	header, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}
	if err := w.f.SetCellStyle(EventsSheet, "A1", "F1", header); err != nil {
		return 0, fmt.Errorf("style %s header: %w", EventsSheet, err)
	}
	if err := w.f.SetColWidth(EventsSheet, "A", "A", 20); err != nil {
		return 0, fmt.Errorf("set %s column width: %w", EventsSheet, err)
	}
	if err := w.f.SetColWidth(EventsSheet, "E", "F", 40); err != nil {
		return 0, fmt.Errorf("set %s column width: %w", EventsSheet, err)
	}
	return len(merged), nil
}
