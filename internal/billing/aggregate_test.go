package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

func sampleRecords() []models.CostRecord {
	return []models.CostRecord{
		rec("2026-10-01", "Amazon EC2", "web", "prod", 10),
		rec("2026-10-01", "Amazon S3", "data", "prod", 2),
		rec("2026-10-02", "Amazon EC2", "web", "dev", 5),
		rec("2026-10-02", "Amazon RDS", "data", "prod", 7),
		rec("2026-10-02", "Tax", models.UntaggedValue, models.UntaggedValue, 0),
		rec("2026-10-03", "Amazon S3", "web", "prod", 2),
	}
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 26.0, Total(sampleRecords()))
	assert.Equal(t, 0.0, Total(nil))
}

func TestDailyTotals_SortedAscending(t *testing.T) {
	got := DailyTotals(sampleRecords())
	want := []models.DailyCost{
		{Date: "2026-10-01", CostUSD: 12},
		{Date: "2026-10-02", CostUSD: 12},
		{Date: "2026-10-03", CostUSD: 2},
	}
	assert.Equal(t, want, got)
}

func TestTopServices_RanksAndDropsZero(t *testing.T) {
	got := TopServices(sampleRecords(), 8)
	want := []models.NamedCost{
		{Name: "Amazon EC2", CostUSD: 15},
		{Name: "Amazon RDS", CostUSD: 7},
		{Name: "Amazon S3", CostUSD: 4},
	}
	assert.Equal(t, want, got)
}

func TestTopProjects_LimitAndTieBreak(t *testing.T) {
	records := []models.CostRecord{
		rec("2026-10-01", "A", "zeta", "e", 3),
		rec("2026-10-01", "A", "alpha", "e", 3),
		rec("2026-10-01", "A", "mid", "e", 1),
	}
	got := TopProjects(records, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Name, "ties must break by name ascending")
	assert.Equal(t, "zeta", got[1].Name)
}

func TestDateRange(t *testing.T) {
	first, last := DateRange(sampleRecords())
	assert.Equal(t, "2026-10-01", first)
	assert.Equal(t, "2026-10-03", last)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(sampleRecords(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 26.0, s.TotalCostUSD)
	assert.Equal(t, "2026-10-01", s.FirstDate)
	assert.Equal(t, "2026-10-03", s.LastDate)
	assert.Len(t, s.TopServices, 2)
	assert.Len(t, s.TopProjects, 2)
	assert.Len(t, s.Daily, 3)
	assert.Equal(t, 2, s.ServiceLimit)
	assert.Equal(t, 10, s.ProjectLimit)
}

func TestSummarize_Empty(t *testing.T) {
	s, err := Summarize(nil, 8, 10)
	if !errors.Is(err, ErrEmptyPeriod) {
		t.Errorf("err = %v; want ErrEmptyPeriod", err)
	}
	assert.Equal(t, 8, s.ServiceLimit)
	assert.Equal(t, 10, s.ProjectLimit)
}
