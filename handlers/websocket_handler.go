package handlers

import (
	"log"
	"net/http"

	"github.com/courtflow/pickleball-system/brackets"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin,
		// чтобы разрешать подключения только с доверенных доменов.
		return true
	},
}

type WebSocketHandler struct {
	hub *brackets.Hub
}

func NewWebSocketHandler(hub *brackets.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeWs обрабатывает WebSocket подключения для конкретного соревнования.
// Клиент подключается к /ws/competitions/{competitionID} и получает события
// матчей этого соревнования (подача счёта, финализация, споры).
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	competitionIDStr := chi.URLParam(r, "competitionID")
	if competitionIDStr == "" {
		http.Error(w, "Missing competitionID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection for competition %s: %v", competitionIDStr, err)
		return
	}

	// ID комнаты совпадает с форматом roomForCompetition в сервисах.
	roomID := "competition:" + competitionIDStr

	client := &brackets.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: roomID,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	log.Printf("Client registered and pumps started for room %s", roomID)
}
