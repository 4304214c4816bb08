package events

import "time"

// EventType identifies a marketplace lifecycle event.
type EventType string

const (
	JobPosted       EventType = "job.posted"
	JobAccepted     EventType = "job.accepted"
	JobCompleted    EventType = "job.completed"
	JobFailed       EventType = "job.failed"
	JobCancelled    EventType = "job.cancelled"
	AgentRegistered EventType = "agent.registered"
)

// Event is the payload pushed to notification subscribers. Delivery is
// fire-and-forget; nothing in the serving path depends on it.
type Event struct {
	Type      EventType         `json:"type"`
	JobID     string            `json:"job_id,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}
