package billing

import (
	"errors"
	"sort"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// ErrEmptyPeriod is returned when there are no cost records to summarise.
var ErrEmptyPeriod = errors.New("no cost records in billing period")

// Total returns the rounded sum of all record costs.
func Total(records []models.CostRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += r.CostUSD
	}
	return RoundCost(sum)
}

// DailyTotals returns one point per date, ascending.
func DailyTotals(records []models.CostRecord) []models.DailyCost {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.Date] += r.CostUSD
	}
	out := make([]models.DailyCost, 0, len(totals))
	for d, c := range totals {
		out = append(out, models.DailyCost{Date: d, CostUSD: RoundCost(c)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TopServices returns up to n services ranked by cost.
func TopServices(records []models.CostRecord, n int) []models.NamedCost {
	return topBy(records, n, func(r models.CostRecord) string { return r.Service })
}

// TopProjects returns up to n projects ranked by cost.
func TopProjects(records []models.CostRecord, n int) []models.NamedCost {
	return topBy(records, n, func(r models.CostRecord) string { return r.Project })
}

// topBy groups records by key, drops zero or negative totals (credits can
// net a group out), and ranks the rest by cost descending with ties broken
// by name.
func topBy(records []models.CostRecord, n int, key func(models.CostRecord) string) []models.NamedCost {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[key(r)] += r.CostUSD
	}
	out := make([]models.NamedCost, 0, len(totals))
	for name, c := range totals {
		c = RoundCost(c)
		if c <= 0 {
			continue
		}
		out = append(out, models.NamedCost{Name: name, CostUSD: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CostUSD != out[j].CostUSD {
			return out[i].CostUSD > out[j].CostUSD
		}
		return out[i].Name < out[j].Name
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// DateRange returns the earliest and latest record dates.
func DateRange(records []models.CostRecord) (first, last string) {
	for _, r := range records {
		if first == "" || r.Date < first {
			first = r.Date
		}
		if r.Date > last {
			last = r.Date
		}
	}
	return first, last
}

// Summarize builds the summary sheet aggregates.
// It returns ErrEmptyPeriod alongside a zero summary when records is empty.
func Summarize(records []models.CostRecord, topServices, topProjects int) (models.CostSummary, error) {
	if len(records) == 0 {
		return models.CostSummary{ServiceLimit: topServices, ProjectLimit: topProjects}, ErrEmptyPeriod
	}
	first, last := DateRange(records)
	return models.CostSummary{
		FirstDate:    first,
		LastDate:     last,
		TotalCostUSD: Total(records),
		Daily:        DailyTotals(records),
		TopServices:  TopServices(records, topServices),
		TopProjects:  TopProjects(records, topProjects),
		ServiceLimit: topServices,
		ProjectLimit: topProjects,
	}, nil
}
