package workbook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// ExistingRecords parses the rows of the detail sheet below its header.
// Rows whose date or cost cannot be parsed are skipped; their count is
// returned so the caller can report it. A missing sheet yields no records.
func (w *Workbook) ExistingRecords() ([]models.CostRecord, int, error) {
	rows, err := w.rows(DetailSheet)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) < 2 {
		return nil, 0, nil
	}

	var (
		records []models.CostRecord
		skipped int
	)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		r, ok := parseDetailRow(row)
		if !ok {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

func parseDetailRow(row []string) (models.CostRecord, bool) {
	date, ok := parseDate(cellValue(row, 0))
	if !ok {
		return models.CostRecord{}, false
	}
	service := strings.TrimSpace(cellValue(row, 1))
	if service == "" {
		return models.CostRecord{}, false
	}
	cost, err := strconv.ParseFloat(strings.TrimSpace(cellValue(row, 4)), 64)
	if err != nil {
		return models.CostRecord{}, false
	}
	return models.CostRecord{
		Date:        date,
		Service:     service,
		Project:     labelOrUntagged(cellValue(row, 2)),
		Environment: labelOrUntagged(cellValue(row, 3)),
		CostUSD:     billing.RoundCost(cost),
	}, true
}

// parseDate accepts YYYY-MM-DD text and Excel date serials, which is what a
// date cell edited by hand in Excel turns into.
func parseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(billing.DateLayout, s); err == nil {
		return d.Format(billing.DateLayout), true
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < 1 {
		return "", false
	}
	d, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return d.Format(billing.DateLayout), true
}

func labelOrUntagged(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.UntaggedValue
	}
	return s
}

// WriteDetail replaces the contents of the detail sheet with records, which
// are written in the given order.
func (w *Workbook) WriteDetail(records []models.CostRecord) error {
	if !w.hasSheet(DetailSheet) {
		idx, err := w.ensureSheet(DetailSheet)
		if err != nil {
			return err
		}
		w.f.SetActiveSheet(idx)
	}

	body := make([][]any, len(records))
	for i, r := range records {
		body[i] = []any{r.Date, r.Service, r.Project, r.Environment, r.CostUSD}
	}
	if err := w.writeTable(DetailSheet, detailHeaders, body); err != nil {
		return err
	}

	header, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := w.f.SetCellStyle(DetailSheet, "A1", "E1", header); err != nil {
		return fmt.Errorf("style %s header: %w", DetailSheet, err)
	}
	for col, width := range map[string]float64{"A": 12, "B": 44, "C": 18, "D": 14, "E": 14} {
		if err := w.f.SetColWidth(DetailSheet, col, col, width); err != nil {
			return fmt.Errorf("set %s column width: %w", DetailSheet, err)
		}
	}
	return nil
}
