package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// Summary sheet layout. Tables sit to the right of the charts so both stay
// visible side by side.
const (
	tableHeaderRow = 7
	tableFirstRow  = 8

	dailyCol   = 1  // A
	serviceCol = 14 // N
	projectCol = 17 // Q

	dailyChartCell   = "D6"
	serviceChartCell = "D22"
	projectChartCell = "D38"

	costNumFmt = "#,##0.0000"
)

// WriteSummary rebuilds the summary sheet from summary. Any existing summary
// sheet is deleted first, together with the drawing and chart parts it
// referenced.
func (w *Workbook) WriteSummary(summary models.CostSummary, identity models.Identity, period billing.Period) error {
	if w.hasSheet(SummarySheet) {
		if err := w.f.DeleteSheet(SummarySheet); err != nil {
			return fmt.Errorf("delete sheet %s: %w", SummarySheet, err)
		}
	}
	if _, err := w.f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", SummarySheet, err)
	}
	// NewSheet has loaded the content types, so their overrides can be pruned.
	if err := w.removeOrphanedCharts(); err != nil {
		return err
	}

	st, err := w.summaryStyles()
	if err != nil {
		return err
	}

	first, last := summary.FirstDate, summary.LastDate
	if first == "" {
		first, last = period.StartString(), period.EndString()
	}
	header := []struct {
		cell  string
		value string
		style int
	}{
		{"A1", "AWS 月度账单报告 - " + period.Title(), st.title},
		{"A2", fmt.Sprintf("账户ID：%s (%s)", identity.AccountID, identity.Alias), 0},
		{"A3", fmt.Sprintf("统计周期：%s 至 %s", first, last), 0},
		{"A4", "本月累计费用：" + billing.FormatUSD(summary.TotalCostUSD), st.total},
	}
	for _, h := range header {
		if err := w.f.SetCellValue(SummarySheet, h.cell, h.value); err != nil {
			return fmt.Errorf("write %s %s: %w", SummarySheet, h.cell, err)
		}
		if h.style != 0 {
			if err := w.f.SetCellStyle(SummarySheet, h.cell, h.cell, h.style); err != nil {
				return fmt.Errorf("style %s %s: %w", SummarySheet, h.cell, err)
			}
		}
	}

	if len(summary.Daily) == 0 {
		return w.f.SetCellValue(SummarySheet, "A6", "本期暂无费用数据")
	}

	daily := make([]models.NamedCost, len(summary.Daily))
	for i, d := range summary.Daily {
		daily[i] = models.NamedCost{Name: d.Date, CostUSD: d.CostUSD}
	}

	tables := []struct {
		col    int
		label  string
		name   string
		rows   []models.NamedCost
		anchor string
		chart  func(series excelize.ChartSeries) *excelize.Chart
	}{
		{dailyCol, "每日费用趋势", "日期", daily, dailyChartCell, dailyChart},
		{serviceCol, topLabel("服务费用占比", summary.ServiceLimit, summary.TopServices), "服务", summary.TopServices, serviceChartCell, serviceChart},
		{projectCol, topLabel("项目费用排名", summary.ProjectLimit, summary.TopProjects), "项目", summary.TopProjects, projectChartCell, projectChart},
	}
	for _, t := range tables {
		series, err := w.writeCostTable(t.col, t.label, t.name, t.rows, st)
		if err != nil {
			return err
		}
		if len(t.rows) == 0 {
			continue
		}
		if err := w.f.AddChart(SummarySheet, t.anchor, t.chart(series)); err != nil {
			return fmt.Errorf("add chart at %s!%s: %w", SummarySheet, t.anchor, err)
		}
	}

	if err := w.f.SetColWidth(SummarySheet, "A", "A", 12); err != nil {
		return fmt.Errorf("set %s column width: %w", SummarySheet, err)
	}
	if err := w.f.SetColWidth(SummarySheet, "N", "N", 40); err != nil {
		return fmt.Errorf("set %s column width: %w", SummarySheet, err)
	}
	return w.f.SetColWidth(SummarySheet, "Q", "Q", 18)
}

// topLabel names a top-N table after the configured N. Summaries built
// without a limit fall back to the row count.
func topLabel(name string, limit int, rows []models.NamedCost) string {
	if limit <= 0 {
		limit = len(rows)
	}
	return fmt.Sprintf("%s Top%d", name, limit)
}

type summaryStyles struct {
	title, total, header, cost int
}

func (w *Workbook) summaryStyles() (summaryStyles, error) {
	var (
		st  summaryStyles
		err error
	)
	numFmt := costNumFmt
	specs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 18}}},
		{&st.total, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 16, Color: "FF0000"}}},
		{&st.header, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&st.cost, &excelize.Style{CustomNumFmt: &numFmt}},
	}
	for _, s := range specs {
		if *s.dst, err = w.f.NewStyle(s.style); err != nil {
			return st, fmt.Errorf("create summary style: %w", err)
		}
	}
	return st, nil
}

// writeCostTable writes a label, a two-column header and one row per cost
// starting at col, and returns a chart series over the written range.
func (w *Workbook) writeCostTable(col int, label, name string, rows []models.NamedCost, st summaryStyles) (excelize.ChartSeries, error) {
	cell := func(c, r int) string {
		s, _ := excelize.CoordinatesToCellName(c, r)
		return s
	}
	abs := func(c, r int) string {
		s, _ := excelize.CoordinatesToCellName(c, r, true)
		return s
	}

	if err := w.f.SetCellValue(SummarySheet, cell(col, tableHeaderRow-1), label); err != nil {
		return excelize.ChartSeries{}, fmt.Errorf("write %s table label: %w", name, err)
	}
	header := []any{name, "费用"}
	if err := w.f.SetSheetRow(SummarySheet, cell(col, tableHeaderRow), &header); err != nil {
		return excelize.ChartSeries{}, fmt.Errorf("write %s table header: %w", name, err)
	}
	if err := w.f.SetCellStyle(SummarySheet, cell(col, tableHeaderRow), cell(col+1, tableHeaderRow), st.header); err != nil {
		return excelize.ChartSeries{}, fmt.Errorf("style %s table header: %w", name, err)
	}

	for i, r := range rows {
		row := []any{r.Name, r.CostUSD}
		if err := w.f.SetSheetRow(SummarySheet, cell(col, tableFirstRow+i), &row); err != nil {
			return excelize.ChartSeries{}, fmt.Errorf("write %s table row: %w", name, err)
		}
	}
	if len(rows) == 0 {
		return excelize.ChartSeries{}, nil
	}

	lastRow := tableFirstRow + len(rows) - 1
	if err := w.f.SetCellStyle(SummarySheet, cell(col+1, tableFirstRow), cell(col+1, lastRow), st.cost); err != nil {
		return excelize.ChartSeries{}, fmt.Errorf("style %s table costs: %w", name, err)
	}

	ref := func(c int) string {
		return fmt.Sprintf("'%s'!%s:%s", SummarySheet, abs(c, tableFirstRow), abs(c, lastRow))
	}
	return excelize.ChartSeries{
		Name:       fmt.Sprintf("'%s'!%s", SummarySheet, abs(col+1, tableHeaderRow)),
		Categories: ref(col),
		Values:     ref(col + 1),
	}, nil
}

func title(text string) []excelize.RichTextRun {
	return []excelize.RichTextRun{{Text: text}}
}

func dailyChart(series excelize.ChartSeries) *excelize.Chart {
	return &excelize.Chart{
		Type:      excelize.Line,
		Series:    []excelize.ChartSeries{series},
		Title:     title("本月每日费用趋势"),
		XAxis:     excelize.ChartAxis{Title: title("日期")},
		YAxis:     excelize.ChartAxis{Title: title("费用 (USD)")},
		Legend:    excelize.ChartLegend{Position: "none"},
		Dimension: excelize.ChartDimension{Width: 560, Height: 300},
	}
}

func serviceChart(series excelize.ChartSeries) *excelize.Chart {
	return &excelize.Chart{
		Type:      excelize.Pie,
		Series:    []excelize.ChartSeries{series},
		Title:     title("服务费用占比"),
		Legend:    excelize.ChartLegend{Position: "right"},
		PlotArea:  excelize.ChartPlotArea{ShowPercent: true},
		Dimension: excelize.ChartDimension{Width: 560, Height: 300},
	}
}

func projectChart(series excelize.ChartSeries) *excelize.Chart {
	return &excelize.Chart{
		Type:      excelize.Col,
		Series:    []excelize.ChartSeries{series},
		Title:     title("项目费用排名"),
		Legend:    excelize.ChartLegend{Position: "none"},
		PlotArea:  excelize.ChartPlotArea{ShowVal: true},
		Dimension: excelize.ChartDimension{Width: 560, Height: 300},
	}
}
