// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/dispatch"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// CommandExecutor runs one websocket command.
type CommandExecutor interface {
	Execute(ctx context.Context, cmdType string, raw json.RawMessage) (any, error)
}

type commandFrame struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type commandReply struct {
	ID      int64                  `json:"id"`
	Type    string                 `json:"type"`
	Success bool                   `json:"success"`
	Result  any                    `json:"result,omitempty"`
	Error   *dispatch.CommandError `json:"error,omitempty"`
}

// WebsocketHandler serves the command channel. Every connection gets its
// own token bucket; commands over the limit are answered with rate_limited
// and not run.
type WebsocketHandler struct {
	exec     CommandExecutor
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

func NewWebsocketHandler(exec CommandExecutor, cfg config.WebsocketConfig) *WebsocketHandler {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &WebsocketHandler{
		exec: exec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Same-origin is not enforced; CORS is open for the API as well.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limit: rate.Limit(cfg.Rate),
		burst: burst,
	}
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) write(reply commandReply) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(reply)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Serve upgrades the request and runs commands until the peer goes away.
// Commands run concurrently; replies carry the id of their frame.
func (h *WebsocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	ws := &wsConn{conn: conn}
	limiter := rate.NewLimiter(h.limit, h.burst)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
		log.Debug().Str("remote", c.ClientIP()).Msg("Websocket client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepAlive(ctx, ws)
	}()

	log.Debug().Str("remote", c.ClientIP()).Msg("Websocket client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}

		var frame commandFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(ws, frame, nil, &dispatch.CommandError{Code: dispatch.ErrCodeInvalidFormat, Message: "Message is not a valid command frame"})
			continue
		}

		if !limiter.Allow() {
			h.reply(ws, frame, nil, &dispatch.CommandError{Code: dispatch.ErrCodeRateLimited, Message: "Too many commands, slow down"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.exec.Execute(ctx, frame.Type, data)
			h.reply(ws, frame, result, err)
		}()
	}
}

func (h *WebsocketHandler) reply(ws *wsConn, frame commandFrame, result any, err error) {
	reply := commandReply{ID: frame.ID, Type: "result"}

	if err != nil {
		var cmdErr *dispatch.CommandError
		if !errors.As(err, &cmdErr) {
			cmdErr = &dispatch.CommandError{Code: "internal_error", Message: err.Error()}
		}
		reply.Error = cmdErr
		log.Debug().
			Int64("id", frame.ID).
			Str("type", frame.Type).
			Str("code", cmdErr.Code).
			Msg("Websocket command failed")
	} else {
		reply.Success = true
		reply.Result = result
	}

	if err := ws.write(reply); err != nil {
		log.Debug().Err(err).Int64("id", frame.ID).Msg("Failed to write websocket reply")
	}
}

func (h *WebsocketHandler) keepAlive(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
