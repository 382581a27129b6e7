package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// publishedAtHeader carries the emit time so consumers can measure bus lag
// against the record's own last_update.
const publishedAtHeader = "Foundry-Published-At"

// NATSPublisher publishes agent lifecycle events as JSON. Publishes are
// fire-and-forget: callers drop the error or log it, and the coordination
// protocol never waits on the bus.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects with endless reconnects so a bus restart does
// not take the agent down with it. Extra nats.Option values are appended.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{
		nats.Name("foundry-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.RetryOnFailedConnect(true),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set(publishedAtHeader, time.Now().UTC().Format(time.RFC3339))
	return p.conn.PublishMsg(msg)
}

// Close drains buffered publishes before closing, so the terminal exited
// event from a stopping agent actually leaves the process.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// NATSSubscriber receives raw event payloads for dashboards and automations.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with automatic reconnection. Extra nats.Option
// values (e.g. disconnect handlers) are appended.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("foundry-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers events for the topic (NATS wildcards like "foundry.>"
// work) on the returned channel. A slow consumer loses messages rather than
// blocking the client; heartbeats supersede each other anyway. The returned
// cancel unsubscribes and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)
	var (
		mu      sync.Mutex
		stopped bool
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		// The lock orders every send against cancel's close below.
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case ch <- Message{Topic: msg.Subject, Data: msg.Data}:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("events: subscribe %s: %w", topic, err)
	}
	// Make sure the server knows about the subscription before we return,
	// so events published on other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("events: flush subscription: %w", err)
	}

	cancel := func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		stopped = true
		_ = sub.Unsubscribe()
		// Drain what's buffered so nothing is stuck, then close.
		for {
			select {
			case <-ch:
			default:
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
