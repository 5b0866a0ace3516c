package models

// ---------------------------------------------------------------------------
// Cost Explorer models
// ---------------------------------------------------------------------------

// UntaggedValue is the project/environment label used for costs whose tag is
// absent or empty.
const UntaggedValue = "Untagged"

// CostRecord is one row of the daily detail sheet: the cost of a single
// service for one project/environment pair on one day.
type CostRecord struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Service     string  `json:"service"`
	Project     string  `json:"project"`
	Environment string  `json:"environment"`
	CostUSD     float64 `json:"cost_usd"`
}

// CostKey is the composite identity of a CostRecord. Two records with the
// same key describe the same cell of the breakdown and must be merged.
type CostKey struct {
	Date        string
	Service     string
	Project     string
	Environment string
}

// Key returns the composite key of r.
func (r CostRecord) Key() CostKey {
	return CostKey{
		Date:        r.Date,
		Service:     r.Service,
		Project:     r.Project,
		Environment: r.Environment,
	}
}

// DailyCost is the total cost of a single day across all groups.
type DailyCost struct {
	Date    string  `json:"date"`
	CostUSD float64 `json:"cost_usd"`
}

// NamedCost is an aggregated cost for a named group (service or project).
type NamedCost struct {
	Name    string  `json:"name"`
	CostUSD float64 `json:"cost_usd"`
}

// CostSummary holds the aggregates rendered on the summary sheet.
type CostSummary struct {
	FirstDate    string      `json:"first_date"`
	LastDate     string      `json:"last_date"`
	TotalCostUSD float64     `json:"total_cost_usd"`
	Daily        []DailyCost `json:"daily"`
	TopServices  []NamedCost `json:"top_services"`
	TopProjects  []NamedCost `json:"top_projects"`

	// ServiceLimit and ProjectLimit are the configured top-N sizes, which
	// can exceed the number of groups actually present.
	ServiceLimit int `json:"service_limit"`
	ProjectLimit int `json:"project_limit"`
}

// Identity is the resolved AWS account a report is generated for.
type Identity struct {
	AccountID string `json:"account_id"`
	Alias     string `json:"alias"`
	Profile   string `json:"profile"`
}
