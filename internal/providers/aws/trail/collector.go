// Package trail collects EC2 instance lifecycle events from CloudTrail event
// history for the instance events sheet.
package trail

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
)

// maxConcurrentRegions is the maximum number of regions looked up in parallel.
const maxConcurrentRegions = 5

// instanceResourceType is the CloudTrail resource type of an EC2 instance.
const instanceResourceType = "AWS::EC2::Instance"

// EventCollector gathers instance lifecycle events for a billing period.
type EventCollector interface {
	CollectInstanceEvents(
		ctx context.Context,
		profile *common.ProfileConfig,
		provider common.AWSClientProvider,
		regions []string,
		period billing.Period,
		eventNames []string,
	) ([]models.InstanceEvent, error)
}

// clientFactory builds a regional CloudTrail client.
type clientFactory func(cfg aws.Config) common.CloudTrailClient

func newDefaultClient(cfg aws.Config) common.CloudTrailClient {
	return cloudtrail.NewFromConfig(cfg)
}

// DefaultEventCollector is the production EventCollector.
type DefaultEventCollector struct {
	factory clientFactory
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewDefaultEventCollector returns a collector backed by the real AWS SDK.
func NewDefaultEventCollector(logger logrus.FieldLogger) *DefaultEventCollector {
	return newEventCollector(newDefaultClient, logger, time.Now)
}

func newEventCollector(f clientFactory, logger logrus.FieldLogger, now func() time.Time) *DefaultEventCollector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DefaultEventCollector{factory: f, logger: logger, now: now}
}

// CollectInstanceEvents looks up every event name in every region over
// period. When regions is empty the account's active regions are used.
//
// A region that fails is logged and skipped; CloudTrail is best effort and
// must not block the billing report. The result is deduplicated by event ID
// and sorted by event time.
func (c *DefaultEventCollector) CollectInstanceEvents(
	ctx context.Context,
	profile *common.ProfileConfig,
	provider common.AWSClientProvider,
	regions []string,
	period billing.Period,
	eventNames []string,
) ([]models.InstanceEvent, error) {
	if len(regions) == 0 {
		active, err := provider.GetActiveRegions(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("resolve CloudTrail regions: %w", err)
		}
		regions = active
	}

	start, end := period.Start, period.End
	if now := c.now().UTC(); end.After(now) {
		end = now
	}

	sem := make(chan struct{}, maxConcurrentRegions)
	var (
		mu  sync.Mutex
		all []models.InstanceEvent
	)

	// Region failures are swallowed, so the group only ever surfaces
	// context cancellation.
	g, gctx := errgroup.WithContext(ctx)

REGIONS:
	for _, region := range regions {
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break REGIONS
		}

		client := c.factory(provider.ConfigForRegion(profile, region))

		g.Go(func() error {
			defer func() { <-sem }()

			log := c.logger.WithFields(logrus.Fields{"profile": profile.ProfileName, "region": region})
			events, err := lookupRegion(gctx, client, region, start, end, eventNames)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithError(err).Warn("skipping CloudTrail region")
				return nil
			}
			log.WithField("events", len(events)).Debug("collected instance events")

			mu.Lock()
			all = append(all, events...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return billing.DedupEvents(all), nil
}

// lookupRegion issues one paginated LookupEvents call per event name, since
// CloudTrail accepts a single lookup attribute per request.
func lookupRegion(
	ctx context.Context,
	client common.CloudTrailClient,
	region string,
	start, end time.Time,
	eventNames []string,
) ([]models.InstanceEvent, error) {
	var events []models.InstanceEvent
	for _, name := range eventNames {
		p := cloudtrail.NewLookupEventsPaginator(client, &cloudtrail.LookupEventsInput{
			LookupAttributes: []cttypes.LookupAttribute{
				{
					AttributeKey:   cttypes.LookupAttributeKeyEventName,
					AttributeValue: aws.String(name),
				},
			},
			StartTime: aws.Time(start),
			EndTime:   aws.Time(end),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("CloudTrail LookupEvents %s in %s: %w", name, region, err)
			}
			for _, e := range page.Events {
				events = append(events, toInstanceEvent(e, region))
			}
		}
	}
	return events, nil
}

func toInstanceEvent(e cttypes.Event, region string) models.InstanceEvent {
	ev := models.InstanceEvent{
		EventID:   aws.ToString(e.EventId),
		EventName: aws.ToString(e.EventName),
		Username:  aws.ToString(e.Username),
		Region:    region,
	}
	if e.EventTime != nil {
		ev.EventTime = e.EventTime.UTC()
	}
	for _, r := range e.Resources {
		if aws.ToString(r.ResourceType) == instanceResourceType && r.ResourceName != nil {
			ev.InstanceIDs = append(ev.InstanceIDs, *r.ResourceName)
		}
	}
	sort.Strings(ev.InstanceIDs)
	return ev
}
