// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
	"github.com/tomtom215/proxywatch/internal/poller"
	"github.com/tomtom215/proxywatch/internal/timerange"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	// maxSubscriptions bounds the pollers one connection can hold open.
	maxSubscriptions = 32
)

// clientIDCounter gives clients a stable sort order for broadcasts.
var clientIDCounter atomic.Uint64

// PollerRegistry hands out shared pollers. *poller.Registry satisfies it.
type PollerRegistry interface {
	Acquire(proxyID string, r models.TimeRange) (*poller.Poller, func())
}

// ClientMessage is a client to server message.
type ClientMessage struct {
	Type        string                `json:"type"`
	ProxyID     string                `json:"proxyId,omitempty"`
	Range       models.TimeRangeToken `json:"range,omitempty"`
	Start       string                `json:"start,omitempty"`
	End         string                `json:"end,omitempty"`
	QuickFilter timerange.QuickFilter `json:"quickFilter,omitempty"`
}

func (m ClientMessage) hasRange() bool {
	return m.Range != "" || m.QuickFilter != ""
}

// Client is one WebSocket connection with its range selection and
// subscriptions.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	registry PollerRegistry
	selector *timerange.Selector

	sendMu sync.Mutex
	send   chan Message
	closed bool

	subMu sync.Mutex
	subs  map[string]*subscription
}

type subscription struct {
	proxyID     string
	rng         models.TimeRange
	release     func()
	unsubscribe func()

	mu          sync.Mutex
	lastVersion uint64
}

// NewClient creates a client. conn may be nil in tests that drive
// HandleMessage directly.
func NewClient(hub *Hub, conn *websocket.Conn, registry PollerRegistry, opts ...timerange.SelectorOption) *Client {
	c := &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		registry: registry,
		selector: timerange.NewSelector(opts...),
		send:     make(chan Message, sendBuffer),
		subs:     make(map[string]*subscription),
	}
	c.selector.OnChange(c.rangeChanged)
	return c
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Range returns the client's current selection.
func (c *Client) Range() models.TimeRange {
	return c.selector.Current()
}

// Subscriptions returns the subscribed proxy IDs.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	return out
}

// enqueue queues msg without blocking. It reports false only when the buffer
// is full; messages for a closed client are discarded.
func (c *Client) enqueue(msg Message) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// push queues a message addressed to this client only.
func (c *Client) push(msg Message) {
	if !c.enqueue(msg) {
		metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
		logging.Warn().Uint64("client_id", c.id).Str("message_type", msg.Type).Msg("websocket send buffer full, dropping message")
	}
}

func (c *Client) pushError(err error) {
	data := ErrorData{Message: err.Error()}
	var verr *timerange.ValidationError
	if errors.As(err, &verr) {
		data.Field = verr.Field
	}
	c.push(Message{Type: MessageTypeError, Data: data})
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleMessage applies one client message.
func (c *Client) HandleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypePing:
		c.push(Message{Type: MessageTypePong})

	case MessageTypeSubscribe:
		if msg.ProxyID == "" {
			c.pushError(&timerange.ValidationError{Field: "proxyId", Reason: "required"})
			return
		}
		if msg.hasRange() {
			if err := c.applyRange(msg); err != nil {
				c.pushError(err)
				return
			}
		}
		if err := c.subscribe(msg.ProxyID, c.selector.Current()); err != nil {
			c.pushError(err)
		}

	case MessageTypeUnsubscribe:
		c.unsubscribe(msg.ProxyID)

	case MessageTypeSetRange:
		if err := c.applyRange(msg); err != nil {
			c.pushError(err)
		}

	default:
		c.pushError(errors.New("unknown message type " + msg.Type))
	}
}

// applyRange updates the selector. A confirmed selection triggers
// rangeChanged, which moves every subscription.
func (c *Client) applyRange(msg ClientMessage) error {
	switch {
	case msg.QuickFilter != "":
		return c.selector.SelectQuickFilter(msg.QuickFilter)
	case msg.Range == models.RangeCustom:
		c.selector.SetDraftStart(msg.Start)
		c.selector.SetDraftEnd(msg.End)
		return c.selector.Apply()
	default:
		return c.selector.Select(msg.Range)
	}
}

func (c *Client) rangeChanged(r models.TimeRange) {
	c.subMu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id, sub := range c.subs {
		if sub.rng.Key() != r.Key() {
			ids = append(ids, id)
		}
	}
	c.subMu.Unlock()

	for _, id := range ids {
		if err := c.subscribe(id, r); err != nil {
			c.pushError(err)
		}
	}
	c.push(Message{Type: MessageTypeRangeChanged, Data: r})
}

var errTooManySubscriptions = errors.New("too many subscriptions")

// subscribe points proxyID at the shared poller for r, replacing any
// subscription on another range, and pushes the current snapshot.
func (c *Client) subscribe(proxyID string, r models.TimeRange) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if old, ok := c.subs[proxyID]; ok {
		if old.rng.Key() == r.Key() {
			return nil
		}
		old.close()
		delete(c.subs, proxyID)
	} else if len(c.subs) >= maxSubscriptions {
		return errTooManySubscriptions
	}

	p, release := c.registry.Acquire(proxyID, r)
	sub := &subscription{proxyID: proxyID, rng: r.Clone(), release: release}
	sub.unsubscribe = p.Subscribe(func(s poller.Snapshot) { c.deliver(sub, s) })
	c.subs[proxyID] = sub

	c.deliver(sub, p.Snapshot())
	logging.Debug().Uint64("client_id", c.id).Str("proxy_id", proxyID).Str("range", r.Key()).Msg("websocket subscription added")
	return nil
}

// deliver forwards s unless a newer version was already sent.
func (c *Client) deliver(sub *subscription, s poller.Snapshot) {
	sub.mu.Lock()
	if s.Version != 0 && s.Version <= sub.lastVersion {
		sub.mu.Unlock()
		return
	}
	sub.lastVersion = s.Version
	sub.mu.Unlock()

	c.push(Message{Type: MessageTypeSnapshot, Data: s})
}

func (c *Client) unsubscribe(proxyID string) {
	c.subMu.Lock()
	sub, ok := c.subs[proxyID]
	delete(c.subs, proxyID)
	c.subMu.Unlock()
	if ok {
		sub.close()
	}
}

// releaseAll drops every subscription. Called when the connection ends.
func (c *Client) releaseAll() {
	c.subMu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.subMu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (s *subscription) close() {
	s.unsubscribe()
	s.release()
}

// readPump reads client messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.releaseAll()
		c.hub.unregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("unexpected_close").Inc()
				logging.Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.pushError(errors.New("malformed message"))
			continue
		}
		c.HandleMessage(msg)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// the hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
