// Package workbook reads and writes the billing report .xlsx file: the daily
// detail sheet, the summary sheet with its charts, and the optional
// instance events sheet.
package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet names are fixed so that refreshing an existing workbook finds the
// sheets a previous run wrote.
const (
	DetailSheet  = "明细_Daily"
	SummarySheet = "汇总_Summary"
	EventsSheet  = "事件_Events"
)

var (
	detailHeaders = []any{"日期", "服务", "项目", "环境", "费用(USD)"}
	eventHeaders  = []any{"时间", "区域", "事件", "用户", "实例", "事件ID"}
)

// Workbook is an open billing report.
type Workbook struct {
	f    *excelize.File
	path string
	// created is true when no file existed at path.
	created bool
}

// Open opens the workbook at path, or starts a new one when the file does
// not exist. A new workbook's default sheet becomes the detail sheet.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return &Workbook{f: f, path: path}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}

	f = excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), DetailSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("init workbook %s: %w", path, err)
	}
	return &Workbook{f: f, path: path, created: true}, nil
}

// Path returns the file the workbook is saved to.
func (w *Workbook) Path() string { return w.path }

// Created reports whether Open started a new workbook.
func (w *Workbook) Created() bool { return w.created }

// Sheets returns the sheet names in workbook order.
func (w *Workbook) Sheets() []string { return w.f.GetSheetList() }

// Save writes the workbook to its path, creating the parent directory.
func (w *Workbook) Save() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output directory for %s: %w", w.path, err)
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}

// Close releases resources held by the workbook. It does not save.
func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) hasSheet(name string) bool {
	idx, err := w.f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// ensureSheet returns the index of name, creating the sheet when missing.
func (w *Workbook) ensureSheet(name string) (int, error) {
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return 0, fmt.Errorf("look up sheet %s: %w", name, err)
	}
	if idx >= 0 {
		return idx, nil
	}
	idx, err = w.f.NewSheet(name)
	if err != nil {
		return 0, fmt.Errorf("create sheet %s: %w", name, err)
	}
	return idx, nil
}

// rows returns the raw cell values of sheet, or nil when it does not exist.
func (w *Workbook) rows(sheet string) ([][]string, error) {
	if !w.hasSheet(sheet) {
		return nil, nil
	}
	rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// writeTable writes header at row 1 followed by body, then removes any rows a
// previous, longer write left behind.
func (w *Workbook) writeTable(sheet string, header []any, body [][]any) error {
	existing, err := w.rows(sheet)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i := range body {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(sheet, cell, &body[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	// Rows are removed bottom-up so indices above stay valid.
	for row := len(existing); row > len(body)+1; row-- {
		if err := w.f.RemoveRow(sheet, row); err != nil {
			return fmt.Errorf("trim %s row %d: %w", sheet, row, err)
		}
	}
	return nil
}

func cellValue(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
