// Package mock provides a deterministic offline dataset so reports can be
// generated and inspected without AWS credentials.
package mock

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// AccountID and Alias identify the mock account.
const (
	AccountID = "123456789012"
	Alias     = "demo"
)

type service struct {
	name string
	// base is the typical daily cost of the service for one project.
	base float64
}

var (
	services = []service{
		{"Amazon Elastic Compute Cloud - Compute", 42},
		{"Amazon Relational Database Service", 18},
		{"Amazon Simple Storage Service", 6.5},
		{"Amazon CloudFront", 4.2},
		{"AWS Lambda", 1.1},
		{"Amazon DynamoDB", 2.7},
		{"Amazon Elastic Load Balancing", 3.9},
		{"Amazon CloudWatch", 0.8},
		{"AWS Key Management Service", 0.12},
	}
	projects     = []string{"checkout", "search", "analytics", "platform", models.UntaggedValue}
	environments = []string{"prod", "staging", models.UntaggedValue}
)

// Identity returns the mock account identity.
func Identity() models.Identity {
	return models.Identity{AccountID: AccountID, Alias: Alias, Profile: "mock"}
}

func newRand(period billing.Period, stream uint64) *rand.Rand {
	seed := uint64(period.Start.Year())*100 + uint64(period.Start.Month())
	return rand.New(rand.NewPCG(seed, stream))
}

// CostRecords returns a fixed breakdown for every day of period. The same
// month always produces the same records; a shorter period of the same
// month produces a prefix of the days of a longer one.
func CostRecords(period billing.Period) []models.CostRecord {
	var out []models.CostRecord
	for _, day := range period.Days() {
		d, _ := time.Parse(billing.DateLayout, day)
		r := newRand(period, uint64(d.Day()))

		for si, svc := range services {
			for pi, project := range projects {
				// Not every project uses every service.
				if (si+pi)%3 == 2 {
					continue
				}
				env := environments[(si+pi)%len(environments)]
				cost := svc.base * (0.6 + 0.8*r.Float64()) / float64(pi+1)
				out = append(out, models.CostRecord{
					Date:        day,
					Service:     svc.name,
					Project:     project,
					Environment: env,
					CostUSD:     billing.RoundCost(cost),
				})
			}
		}
	}
	return billing.Dedup(out)
}

// InstanceEvents returns a handful of launch and terminate events spread
// over period.
func InstanceEvents(period billing.Period) []models.InstanceEvent {
	days := period.Days()
	if len(days) == 0 {
		return nil
	}
	r := newRand(period, 0)
	regions := []string{"us-east-1", "eu-west-1"}

	var out []models.InstanceEvent
	for i := 0; i < len(days); i += 3 {
		d, _ := time.Parse(billing.DateLayout, days[i])
		at := d.Add(time.Duration(8+r.IntN(10)) * time.Hour).Add(time.Duration(r.IntN(60)) * time.Minute)
		instance := fmt.Sprintf("i-%017x", r.Uint64()>>4)

		name := "RunInstances"
		if (i/3)%2 == 1 {
			name = "TerminateInstances"
		}
		out = append(out, models.InstanceEvent{
			EventID:     fmt.Sprintf("mock-%s-%02d", period.Month(), i),
			EventTime:   at,
			Region:      regions[(i/3)%len(regions)],
			EventName:   name,
			Username:    "deploy-bot",
			InstanceIDs: []string{instance},
		})
	}
	return out
}
