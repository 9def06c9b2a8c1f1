// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/routing"
)

// traceSendBuffer is the per-subscriber event backlog. The stream is
// advisory; a subscriber that falls further behind loses events instead of
// stalling routing.
const traceSendBuffer = 64

// TraceHub implements routing.Tracer by fanning events out to websocket
// subscribers on /v1/trace. It is safe for concurrent use.
type TraceHub struct {
	mu       sync.RWMutex
	sessions map[string]*traceSession
	closed   bool
}

type traceSession struct {
	id   string
	conn *websocket.Conn
	send chan routing.TraceEvent
	once sync.Once
	done chan struct{}
}

// NewTraceHub builds an empty hub. Wire it as the chain's tracer and as
// the server's Trace dependency.
func NewTraceHub() *TraceHub {
	return &TraceHub{
		sessions: make(map[string]*traceSession),
	}
}

// Trace delivers one event to every subscriber without blocking.
func (h *TraceHub) Trace(evt routing.TraceEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		select {
		case sess.send <- evt:
		default:
		}
	}
}

// SessionCount returns the number of connected subscribers.
func (h *TraceHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every subscriber. New connections are refused
// afterwards.
func (h *TraceHub) Close() {
	h.mu.Lock()
	sessions := make([]*traceSession, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[string]*traceSession)
	h.closed = true
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (h *TraceHub) attach(conn *websocket.Conn) *traceSession {
	sess := &traceSession{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan routing.TraceEvent, traceSendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sess.close()
		return nil
	}
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	log.Debugf("Trace subscriber connected: %s", sess.id)
	return sess
}

func (h *TraceHub) detach(sess *traceSession) {
	h.mu.Lock()
	delete(h.sessions, sess.id)
	h.mu.Unlock()
	sess.close()
	log.Debugf("Trace subscriber disconnected: %s", sess.id)
}

func (sess *traceSession) close() {
	sess.once.Do(func() {
		close(sess.done)
		sess.conn.Close()
	})
}

// writeLoop marshals queued events and pushes them down the socket until
// the session ends.
func (sess *traceSession) writeLoop() {
	for {
		select {
		case evt := <-sess.send:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// traceUpgrader accepts any origin: the stream is read-only advisory data
// and carries no prompts or credentials.
var traceUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleTrace upgrades the connection and streams trace events until the
// client disconnects. Messages from the client are discarded.
func (s *Server) handleTrace(c *gin.Context) {
	if s.deps.Trace == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trace stream disabled"})
		return
	}
	conn, err := traceUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	sess := s.deps.Trace.attach(conn)
	if sess == nil {
		conn.Close()
		return
	}
	go sess.writeLoop()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.deps.Trace.detach(sess)
}
