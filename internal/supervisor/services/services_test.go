// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeServer struct {
	mu       sync.Mutex
	listen   chan error
	shutdown error
	stopped  bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{listen: make(chan error, 1)}
}

func (s *fakeServer) ListenAndServe() error { return <-s.listen }

func (s *fakeServer) Shutdown(context.Context) error {
	s.mu.Lock()
	s.stopped = true
	err := s.shutdown
	s.mu.Unlock()
	s.listen <- nil
	return err
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPServerService(srv, time.Second)
	if svc.String() != "http-server" {
		t.Errorf("String = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.stopped {
		t.Error("Shutdown not called")
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := newFakeServer()
	srv.listen <- errors.New("address in use")

	err := NewHTTPServerService(srv, 0).Serve(context.Background())
	if err == nil || err.Error() != "http server failed: address in use" {
		t.Errorf("Serve = %v", err)
	}
}

func TestHTTPServerServiceShutdownFailure(t *testing.T) {
	srv := newFakeServer()
	srv.shutdown = errors.New("deadline")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewHTTPServerService(srv, time.Second).Serve(ctx); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want shutdown failure", err)
	}
}

type fakeHub struct{ runs int }

func (h *fakeHub) RunWithContext(ctx context.Context) error {
	h.runs++
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService(t *testing.T) {
	hub := &fakeHub{}
	svc := NewWebSocketHubService(hub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if hub.runs != 1 || svc.String() != "websocket-hub" {
		t.Errorf("runs=%d name=%q", hub.runs, svc.String())
	}
}
