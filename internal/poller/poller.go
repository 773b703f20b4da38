// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

// ErrNotStarted is returned by Refresh before Start or after Stop.
var ErrNotStarted = errors.New("poller not started")

// State is the poller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// DataSource fetches one series. *bandwidth.Source satisfies it.
type DataSource interface {
	Fetch(ctx context.Context, proxyID string, r models.TimeRange) (bandwidth.Result, error)
}

// Snapshot is a read-only view of a poller. Samples is shared and must not be
// modified. Version increases with every change; subscribers may observe
// deliveries out of order and should drop lower versions.
type Snapshot struct {
	ProxyID     string                   `json:"proxyId"`
	Range       models.TimeRange         `json:"range"`
	State       State                    `json:"state"`
	Samples     []models.BandwidthSample `json:"samples"`
	Fallback    bool                     `json:"fallback"`
	Error       string                   `json:"error,omitempty"`
	LastUpdated *time.Time               `json:"lastUpdated,omitempty"`
	IntervalMs  int64                    `json:"intervalMs,omitempty"`
	Version     uint64                   `json:"version"`
	models.BandwidthStats
}

// Settled reports whether the snapshot holds a fetch outcome.
func (s Snapshot) Settled() bool {
	return s.State == StateReady || s.State == StateError
}

// Config configures a Poller.
type Config struct {
	Interval  time.Duration
	Scheduler Scheduler
	Now       func() time.Time
}

// Poller is the per-instance state machine.
type Poller struct {
	source DataSource
	cfg    Config

	mu          sync.Mutex
	proxyID     string
	rng         models.TimeRange
	started     bool
	gen         uint64
	inFlight    bool
	cancelFetch context.CancelFunc
	stopTimer   func()
	snap        Snapshot
	changed     chan struct{}
	subs        map[int]func(Snapshot)
	nextSub     int

	wg sync.WaitGroup
}

// New creates an idle Poller.
func New(source DataSource, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TickerScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		source:  source,
		cfg:     cfg,
		snap:    Snapshot{State: StateIdle},
		changed: make(chan struct{}),
		subs:    make(map[int]func(Snapshot)),
	}
}

// Start points the poller at proxyID over r, fetches immediately and re-arms
// the timer. Calling Start on a running poller behaves like SetParams.
func (p *Poller) Start(proxyID string, r models.TimeRange) {
	r = r.Clone()

	p.mu.Lock()
	if p.stopTimer != nil {
		p.stopTimer()
	}
	if !p.started || p.proxyID != proxyID || p.rng.Key() != r.Key() {
		p.snap = Snapshot{ProxyID: proxyID, Range: r, Version: p.snap.Version}
	}
	p.proxyID, p.rng = proxyID, r
	p.started = true
	p.launchLocked()
	p.stopTimer = p.cfg.Scheduler.Every(p.cfg.Interval, p.tick)
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// SetParams changes the proxy or range. Any in-flight fetch is superseded.
func (p *Poller) SetParams(proxyID string, r models.TimeRange) {
	p.Start(proxyID, r)
}

// Refresh fetches now, superseding any in-flight fetch, without touching the
// timer phase.
func (p *Poller) Refresh() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.launchLocked()
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
	return nil
}

// Stop cancels the timer and any in-flight fetch. No result arriving after
// Stop is applied. The poller may be started again.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.gen++
	if p.stopTimer != nil {
		p.stopTimer()
		p.stopTimer = nil
	}
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.inFlight = false
	p.snap.State = StateIdle
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// Snapshot returns the current view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Running reports whether the poller has been started and not stopped.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Await blocks until the snapshot is settled or ctx ends. It returns the
// latest snapshot either way.
func (p *Poller) Await(ctx context.Context) (Snapshot, error) {
	for {
		p.mu.Lock()
		snap, ch := p.snap, p.changed
		p.mu.Unlock()

		if snap.Settled() {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Subscribe registers fn for every snapshot change. fn runs on the goroutine
// that caused the change and must not block.
func (p *Poller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Poller) tick() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		p.mu.Unlock()
		metrics.PollerTicksSkipped.Inc()
		return
	}
	p.launchLocked()
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// launchLocked supersedes any in-flight fetch and starts a new one.
func (p *Poller) launchLocked() {
	if p.cancelFetch != nil {
		p.cancelFetch()
	}
	p.gen++
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelFetch = cancel
	p.inFlight = true
	p.snap.State = StateLoading

	p.wg.Add(1)
	go p.run(ctx, cancel, p.gen, p.proxyID, p.rng.Clone())
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, proxyID string, r models.TimeRange) {
	defer p.wg.Done()
	defer cancel()

	res, err := p.source.Fetch(ctx, proxyID, r)

	p.mu.Lock()
	if !p.started || gen != p.gen {
		stopped := !p.started
		p.mu.Unlock()
		if !stopped {
			metrics.PollerSuperseded.Inc()
		}
		return
	}
	p.inFlight = false
	p.cancelFetch = nil

	if err != nil {
		logging.Debug().Err(err).Str("proxy_id", proxyID).Str("range", r.Key()).Msg("Bandwidth fetch failed")
		p.snap.State = StateError
		p.snap.Error = err.Error()
		p.snap.Samples = nil
		p.snap.Fallback = false
		p.snap.BandwidthStats = models.BandwidthStats{}
	} else {
		now := p.cfg.Now()
		p.snap.State = StateReady
		p.snap.Error = ""
		p.snap.Samples = res.Samples
		p.snap.Fallback = res.Fallback
		p.snap.LastUpdated = &now
		p.snap.IntervalMs = res.Interval.Milliseconds()
		p.snap.BandwidthStats = models.ComputeStats(res.Samples)
	}
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// publishLocked bumps the version, wakes Await callers and returns what to
// deliver outside the lock.
func (p *Poller) publishLocked() (Snapshot, []func(Snapshot)) {
	p.snap.Version++
	close(p.changed)
	p.changed = make(chan struct{})

	subs := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	return p.snap, subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
