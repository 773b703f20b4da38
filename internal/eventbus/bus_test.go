// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

func TestMemoryBusRoundTrip(t *testing.T) {
	bus := NewMemoryBus("test.jobs", nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan JobEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Consume(ctx, func(ev JobEvent) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("test.jobs", "success"))

	// gochannel drops messages published before the subscription exists
	deadline := time.After(2 * time.Second)
	for {
		err := bus.PublishJob(ctx, JobEvent{Kind: JobCompleted, Job: models.ExportJob{ID: "job-1", Status: models.StatusCompleted}})
		if err != nil {
			t.Fatalf("PublishJob: %v", err)
		}
		select {
		case ev := <-got:
			if ev.Kind != JobCompleted || ev.Job.ID != "job-1" || ev.EventID == "" || ev.OccurredAt.IsZero() {
				t.Errorf("event = %+v", ev)
			}
			if testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("test.jobs", "success"))-before < 1 {
				t.Error("publish not counted")
			}
			cancel()
			<-done
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewMemoryBus("test.closed", nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := bus.PublishJob(context.Background(), JobEvent{Kind: JobCreated}); err != ErrClosed {
		t.Errorf("PublishJob after Close = %v, want ErrClosed", err)
	}
}

func TestDecodeJobEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeJobEvent(message.NewMessage("m1", []byte("{"))); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewBackends(t *testing.T) {
	bus, err := New(config.EventsConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	if bus.Topic() != DefaultTopic {
		t.Errorf("Topic = %q", bus.Topic())
	}
	_ = bus.Close()

	if _, err := New(config.EventsConfig{Backend: "kafka"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
