package models

import "time"

// InstanceEvent is a CloudTrail management event that touched one or more
// EC2 instances (launch, terminate, ...).
type InstanceEvent struct {
	EventID     string    `json:"event_id"`
	EventTime   time.Time `json:"event_time"`
	Region      string    `json:"region"`
	EventName   string    `json:"event_name"`
	Username    string    `json:"username,omitempty"`
	InstanceIDs []string  `json:"instance_ids,omitempty"`
}
