package events

import (
	"context"
	"testing"
)

var (
	_ Publisher  = (*NATSPublisher)(nil)
	_ Publisher  = NoopPublisher{}
	_ Subscriber = (*NATSSubscriber)(nil)
)

func TestNoopPublisher(t *testing.T) {
	var pub NoopPublisher
	if err := pub.Publish(context.Background(), TopicAgentStarted, AgentStarted{Name: "alice"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
