// Package events is the optional lifecycle bus. Agents publish what they do;
// dashboards and automations subscribe. Nothing in the coordination protocol
// depends on the bus being up: when NATS is not configured the noop publisher
// swallows everything.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// Event topic constants
const (
	TopicAgentStarted    = "foundry.agent.started"
	TopicAgentHeartbeat  = "foundry.agent.heartbeat"
	TopicAgentExited     = "foundry.agent.exited"
	TopicAgentStale      = "foundry.agent.stale"
	TopicUnitClaimed     = "foundry.unit.claimed"
	TopicUnitCreated     = "foundry.unit.created"
	TopicChangeSetMerged = "foundry.changeset.merged"
)

// Event types

type AgentStarted struct {
	AgentType string `json:"agent_type"`
	Name      string `json:"name"`
	Project   string `json:"project"`
	RunID     string `json:"run_id"`
	PID       int    `json:"pid"`
	Resumed   bool   `json:"resumed"`
}

type AgentHeartbeat struct {
	AgentType string      `json:"agent_type"`
	Name      string      `json:"name"`
	Project   string      `json:"project"`
	Status    model.Phase `json:"status"`
	Details   string      `json:"details,omitempty"`
}

type AgentExited struct {
	AgentType string      `json:"agent_type"`
	Name      string      `json:"name"`
	Project   string      `json:"project"`
	Status    model.Phase `json:"status"`
}

type AgentStale struct {
	AgentType  string    `json:"agent_type"`
	Name       string    `json:"name"`
	Project    string    `json:"project"`
	LastUpdate time.Time `json:"last_update"`
}

type UnitClaimed struct {
	UnitID  int    `json:"unit_id"`
	Slug    string `json:"slug"`
	Project string `json:"project"`
}

type UnitCreated struct {
	Unit    *model.WorkUnit `json:"unit"`
	Project string          `json:"project"`
}

type ChangeSetMerged struct {
	ChangeSetID int    `json:"change_set_id"`
	Project     string `json:"project"`
	MergedBy    string `json:"merged_by"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Message is one delivered event: the concrete topic it arrived on (the
// subscription may be a wildcard) and the raw JSON payload.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events for a topic. The returned cancel func stops
// delivery and closes the channel.
type Subscriber interface {
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// NoopPublisher discards everything. Used when no bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }
