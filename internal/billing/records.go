package billing

import (
	"sort"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// Dedup merges records sharing a composite key by summing their cost. The
// result is rounded and sorted by Date, Service, Project, Environment.
// The input slice is not modified.
func Dedup(records []models.CostRecord) []models.CostRecord {
	index := make(map[models.CostKey]int, len(records))
	out := make([]models.CostRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, ok := index[k]; ok {
			out[i].CostUSD += r.CostUSD
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	for i := range out {
		out[i].CostUSD = RoundCost(out[i].CostUSD)
	}
	SortRecords(out)
	return out
}

// MergeResult is the outcome of refreshing existing detail rows with a fresh
// query.
type MergeResult struct {
	Records []models.CostRecord
	// Kept counts existing rows carried over because they lie outside the
	// refreshed period.
	Kept int
	// Replaced counts existing rows dropped because the fresh query covers
	// their date, or because a fresh record shares their key.
	Replaced int
}

// Merge combines rows already present in a workbook with freshly queried
// records. Existing rows inside period are dropped, since the fresh query
// is authoritative for those dates; rows outside it are kept. When a fresh
// record shares a key with a kept row the fresh record wins.
func Merge(existing, fresh []models.CostRecord, period Period) MergeResult {
	freshSet := Dedup(fresh)
	freshKeys := make(map[models.CostKey]struct{}, len(freshSet))
	for _, r := range freshSet {
		freshKeys[r.Key()] = struct{}{}
	}

	var res MergeResult
	merged := make([]models.CostRecord, 0, len(existing)+len(freshSet))
	for _, r := range existing {
		if period.Contains(r.Date) {
			res.Replaced++
			continue
		}
		if _, dup := freshKeys[r.Key()]; dup {
			res.Replaced++
			continue
		}
		res.Kept++
		merged = append(merged, r)
	}
	merged = append(merged, freshSet...)

	res.Records = Dedup(merged)
	return res
}

// SortRecords orders records by Date, Service, Project, Environment.
func SortRecords(records []models.CostRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		return a.Environment < b.Environment
	})
}
