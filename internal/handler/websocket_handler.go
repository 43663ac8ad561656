package handler

import (
	"log/slog"
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"

	"aqms-backend/internal/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewWebSocketHandler accepts upgrades from allowedOrigins; "*" allows any origin.
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump()
}
