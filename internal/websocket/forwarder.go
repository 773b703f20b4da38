// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package websocket

import (
	"context"
	"errors"

	"github.com/tomtom215/proxywatch/internal/eventbus"
	"github.com/tomtom215/proxywatch/internal/logging"
)

// JobConsumer delivers export job events. *eventbus.Bus satisfies it.
type JobConsumer interface {
	Consume(ctx context.Context, fn func(eventbus.JobEvent)) error
}

// JobForwarder relays export job events from the bus to every WebSocket
// client. It is a suture service.
type JobForwarder struct {
	hub      *Hub
	consumer JobConsumer
}

// NewJobForwarder creates a forwarder from consumer to hub.
func NewJobForwarder(hub *Hub, consumer JobConsumer) *JobForwarder {
	return &JobForwarder{hub: hub, consumer: consumer}
}

// Serve consumes until ctx ends.
func (f *JobForwarder) Serve(ctx context.Context) error {
	logging.Info().Msg("Export job forwarder started")
	err := f.consumer.Consume(ctx, f.hub.BroadcastJobEvent)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("job event stream ended")
	}
	logging.Warn().Err(err).Msg("Export job forwarder stopped")
	return err
}

// String implements fmt.Stringer for supervisor logging.
func (f *JobForwarder) String() string { return "export-job-forwarder" }
