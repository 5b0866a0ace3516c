package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

func testPeriod(day int) billing.Period {
	return billing.PeriodFor(time.Date(2026, time.October, day, 0, 0, 0, 0, time.UTC))
}

func TestCostRecords_Deterministic(t *testing.T) {
	a := CostRecords(testPeriod(14))
	b := CostRecords(testPeriod(14))
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestCostRecords_CoversEveryDay(t *testing.T) {
	p := testPeriod(14)
	seen := map[string]bool{}
	for _, r := range CostRecords(p) {
		assert.True(t, p.Contains(r.Date), "date %s outside period", r.Date)
		assert.Greater(t, r.CostUSD, 0.0)
		seen[r.Date] = true
	}
	assert.Len(t, seen, 13)
}

func TestCostRecords_PrefixStable(t *testing.T) {
	short := CostRecords(testPeriod(5))
	long := CostRecords(testPeriod(14))

	byKey := map[models.CostKey]float64{}
	for _, r := range long {
		byKey[r.Key()] = r.CostUSD
	}
	for _, r := range short {
		assert.Equal(t, byKey[r.Key()], r.CostUSD, "record %+v changed between runs", r.Key())
	}
}

func TestCostRecords_IncludesUntagged(t *testing.T) {
	var untagged bool
	for _, r := range CostRecords(testPeriod(3)) {
		if r.Project == models.UntaggedValue {
			untagged = true
		}
	}
	assert.True(t, untagged)
}

func TestCostRecords_EmptyPeriod(t *testing.T) {
	p := billing.Period{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Empty(t, CostRecords(p))
	assert.Empty(t, InstanceEvents(p))
}

func TestInstanceEvents(t *testing.T) {
	p := testPeriod(14)
	events := InstanceEvents(p)
	require.NotEmpty(t, events)

	ids := map[string]bool{}
	for _, e := range events {
		assert.False(t, ids[e.EventID], "duplicate event ID %s", e.EventID)
		ids[e.EventID] = true
		assert.False(t, e.EventTime.Before(p.Start))
		assert.True(t, e.EventTime.Before(p.End.Add(24*time.Hour)))
		assert.Len(t, e.InstanceIDs, 1)
	}
	assert.Equal(t, events, InstanceEvents(p))
}

func TestIdentity(t *testing.T) {
	id := Identity()
	assert.Equal(t, "123456789012", id.AccountID)
	assert.Equal(t, "demo", id.Alias)
}
