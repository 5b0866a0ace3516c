package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// ANSI color codes for the total cost (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
)

// TableOptions controls which columns RenderTable renders and how totals are coloured.
type TableOptions struct {
	// Colored wraps total costs with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeSummary prints the top services and projects of every report
	// below the table.
	IncludeSummary bool

	// IncludeS3 adds an S3 URI column when any report was uploaded.
	IncludeS3 bool
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// truncateField shortens s to at most max runes for ID/label columns.
// A single-char ellipsis replaces the last rune when truncation occurs.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// totalCell returns the formatted total right-aligned to width characters.
// When colored, ANSI codes wrap only the text so padding stays aligned.
func totalCell(v float64, width int, colored bool) string {
	text := billing.FormatUSD(v)
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	if !colored {
		return strings.Repeat(" ", spaces) + text
	}
	return strings.Repeat(" ", spaces) + ansiBoldRed + text + ansiReset
}

func hasS3(results []models.ReportResult) bool {
	for _, r := range results {
		if r.S3URI != "" {
			return true
		}
	}
	return false
}

// RenderTable writes one line per written workbook to w.
// The separator line width is derived from the header row so all rows align.
//
// Column order:
//
//	PROFILE  ACCOUNT  ALIAS  MONTH  ROWS  TOTAL  PATH  [S3]
func RenderTable(w io.Writer, results []models.ReportResult, opts TableOptions) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No reports.")
		return
	}

	showS3 := opts.IncludeS3 && hasS3(results)

	const (
		wProfile = 16
		wAccount = 12
		wAlias   = 20
		wMonth   = 6
		wRows    = 6
		wTotal   = 16
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wProfile, "PROFILE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wAccount, "ACCOUNT"))
	hb.WriteString(fmt.Sprintf("  %-*s", wAlias, "ALIAS"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMonth, "MONTH"))
	hb.WriteString(fmt.Sprintf("  %*s", wRows, "ROWS"))
	hb.WriteString(fmt.Sprintf("  %*s", wTotal, "TOTAL"))
	hb.WriteString("  PATH")
	if showS3 {
		hb.WriteString("  S3")
	}
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, r := range results {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wProfile, truncateField(r.Profile, wProfile)))
		rb.WriteString(fmt.Sprintf("  %-*s", wAccount, r.AccountID))
		rb.WriteString(fmt.Sprintf("  %-*s", wAlias, truncateField(r.Alias, wAlias)))
		rb.WriteString(fmt.Sprintf("  %-*s", wMonth, r.Month))
		rb.WriteString(fmt.Sprintf("  %*d", wRows, r.Records))
		rb.WriteString("  " + totalCell(r.Summary.TotalCostUSD, wTotal, opts.Colored))
		rb.WriteString("  " + r.Path)
		if showS3 {
			rb.WriteString("  " + r.S3URI)
		}
		fmt.Fprintln(w, rb.String())
	}

	if !opts.IncludeSummary {
		return
	}
	for _, r := range results {
		fmt.Fprintln(w)
		RenderSummary(w, r, opts)
	}
}

// RenderSummary writes the period, total, and top services and projects of
// one report.
func RenderSummary(w io.Writer, r models.ReportResult, opts TableOptions) {
	s := r.Summary
	fmt.Fprintf(w, "%s (%s)  %s\n", r.AccountID, r.Alias, r.Month)
	if s.FirstDate == "" {
		fmt.Fprintln(w, "  No cost recorded.")
		return
	}
	fmt.Fprintf(w, "  Period: %s .. %s\n", s.FirstDate, s.LastDate)
	fmt.Fprintf(w, "  Total:  %s\n", strings.TrimSpace(totalCell(s.TotalCostUSD, 0, opts.Colored)))

	renderNamed(w, "TOP SERVICES", s.TopServices)
	renderNamed(w, "TOP PROJECTS", s.TopProjects)
}

func renderNamed(w io.Writer, title string, rows []models.NamedCost) {
	if len(rows) == 0 {
		return
	}
	const (
		wName = 48
		wCost = 16
	)
	fmt.Fprintf(w, "\n  %-*s  %*s\n", wName, title, wCost, "COST")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", wName+2+wCost))
	for _, r := range rows {
		fmt.Fprintf(w, "  %-*s  %*s\n", wName, ShortenMessage(r.Name, wName), wCost, billing.FormatUSD(r.CostUSD))
	}
}
