// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package eventbus carries export job lifecycle events over Watermill.
//
// The default transport is an in-process gochannel pub/sub. Building with
// -tags=nats enables a NATS JetStream transport so several instances can share
// job updates.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "proxywatch.export.jobs"

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// JobEventKind names a lifecycle transition.
type JobEventKind string

const (
	JobCreated   JobEventKind = "created"
	JobProgress  JobEventKind = "progress"
	JobCompleted JobEventKind = "completed"
	JobFailed    JobEventKind = "failed"
	JobDeleted   JobEventKind = "deleted"
)

// JobEvent is published for every export job transition.
type JobEvent struct {
	EventID    string           `json:"eventId"`
	Kind       JobEventKind     `json:"kind"`
	Job        models.ExportJob `json:"job"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// Bus publishes and consumes JobEvents on a single topic.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool // publisher and subscriber are the same pub/sub
	topic      string
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New builds the bus for the configured backend.
func New(cfg config.EventsConfig) (*Bus, error) {
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("eventbus"))
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBus(topic, logger), nil
	case "nats":
		return newNATSBus(cfg.NATSURL, topic, logger)
	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.Backend)
	}
}

// NewMemoryBus creates an in-process bus. logger may be nil.
func NewMemoryBus(topic string, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
	return &Bus{publisher: pubSub, subscriber: pubSub, shared: true, topic: topic, logger: logger}
}

// Topic returns the topic events are published on.
func (b *Bus) Topic() string { return b.topic }

// PublishJob publishes one event. A missing EventID or timestamp is filled in.
func (b *Bus) PublishJob(ctx context.Context, ev JobEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if ev.EventID == "" {
		ev.EventID = watermill.NewUUID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	msg := message.NewMessage(ev.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", string(ev.Kind))
	msg.Metadata.Set("job_id", ev.Job.ID)

	err = b.publisher.Publish(b.topic, msg)
	metrics.RecordEventPublish(b.topic, err)
	if err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// DecodeJobEvent parses a message payload.
func DecodeJobEvent(msg *message.Message) (JobEvent, error) {
	var ev JobEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return JobEvent{}, fmt.Errorf("decode job event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// Consume delivers events to fn until ctx ends or the bus closes.
// Undecodable messages are acked and dropped.
func (b *Bus) Consume(ctx context.Context, fn func(JobEvent)) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			ev, err := DecodeJobEvent(msg)
			if err != nil {
				logging.Warn().Err(err).Msg("Dropping malformed job event")
				msg.Ack()
				continue
			}
			fn(ev)
			msg.Ack()
		}
	}
}

// Close shuts down the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	errPub := b.publisher.Close()
	if !b.shared {
		if err := b.subscriber.Close(); err != nil && errPub == nil {
			errPub = err
		}
	}
	return errPub
}
