// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/services/coordinator"
)

const (
	keepAliveInterval = 15 * time.Second
	clientBufferSize  = 4
)

type client struct {
	send        chan StatusPayload
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// EventsHandler streams status updates to SSE clients. Broadcast is meant
// to be registered with the coordinator and never blocks: a client that
// has not drained its buffer misses the update and gets the next one.
type EventsHandler struct {
	source    StatusSource
	keepAlive time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	active  atomic.Int64
}

func NewEventsHandler(source StatusSource) *EventsHandler {
	return &EventsHandler{
		source:    source,
		keepAlive: keepAliveInterval,
		clients:   make(map[*client]struct{}),
	}
}

// Clients returns the number of connected SSE clients.
func (h *EventsHandler) Clients() int64 {
	return h.active.Load()
}

// Broadcast sends a new snapshot to every connected client.
func (h *EventsHandler) Broadcast(snap *coordinator.Snapshot) {
	payload := newStatusPayload(h.source, snap)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Debug().
				Time("client_connected_at", c.connectedAt).
				Msg("Skipped broadcast due to slow client")
		}
	}
}

func (h *EventsHandler) register() *client {
	c := &client{
		send:        make(chan StatusPayload, clientBufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	total := h.active.Add(1)
	log.Debug().Int64("total_clients", total).Msg("New SSE client connected")
	return c
}

func (h *EventsHandler) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
	total := h.active.Add(-1)
	log.Debug().
		Dur("connected_for", time.Since(c.connectedAt)).
		Int64("total_clients", total).
		Msg("SSE client disconnected")
}

// Close disconnects every client, ending their streams.
func (h *EventsHandler) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// StreamStatus handles SSE connections. The current status is sent right
// away, then every new snapshot as a "status" event.
func (h *EventsHandler) StreamStatus(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	cl := h.register()
	defer h.unregister(cl)

	c.SSEvent("status", newStatusPayload(h.source, nil))
	c.Writer.Flush()

	ctx := c.Request.Context()
	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.done:
			return
		case payload := <-cl.send:
			c.SSEvent("status", payload)
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("keepalive", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}
