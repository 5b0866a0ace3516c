package billing

import (
	"sort"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// DedupEvents drops repeated event IDs, keeping the last occurrence, and
// sorts by event time then ID. Events without an ID are always kept.
//
// Appending fresh events after existing ones therefore lets the fresh copy
// win.
func DedupEvents(events []models.InstanceEvent) []models.InstanceEvent {
	index := make(map[string]int, len(events))
	out := make([]models.InstanceEvent, 0, len(events))
	for _, e := range events {
		if e.EventID != "" {
			if i, ok := index[e.EventID]; ok {
				out[i] = e
				continue
			}
			index[e.EventID] = len(out)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].EventTime.Before(out[j].EventTime)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}
