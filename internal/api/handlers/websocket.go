// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openui/orchestrator/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientMessage is an incoming WebSocket frame from §6.2.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// WebSocketHandler streams a single session's PTY output to one
// client and forwards its input/resize frames back.
type WebSocketHandler struct {
	mgr *session.Manager
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(mgr *session.Manager) *WebSocketHandler {
	return &WebSocketHandler{mgr: mgr}
}

// ServeHTTP handles GET /ws?sessionId=<id>.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId query parameter required", http.StatusBadRequest)
		return
	}
	if _, ok := h.mgr.GetSession(sessionID); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	writeJSON := func(msg session.OutMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	}

	sub, ok := h.mgr.Subscribe(sessionID)
	if !ok {
		return
	}
	defer h.mgr.Unsubscribe(sessionID, sub)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for msg := range sub {
			if writeJSON(msg) != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "input":
			h.mgr.SendInput(sessionID, msg.Data)
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				h.mgr.Resize(sessionID, msg.Cols, msg.Rows)
			}
		}
	}
}
