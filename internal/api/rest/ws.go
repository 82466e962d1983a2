package rest

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vision-scan/internal/domain/entity"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler отправляет клиенту каждое новое состояние контроллера
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] websocket upgrade failed: %v", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	log.Printf("[HTTP] websocket client connected: %s", clientID)

	send := make(chan entity.State, 16)
	done := make(chan struct{})

	// медленный клиент теряет промежуточные состояния, но не тормозит контроллер
	unsubscribe := h.ctrl.Subscribe(func(s entity.State) {
		select {
		case send <- s:
		default:
		}
	})

	go func() {
		defer close(done)
		readPump(conn, clientID)
	}()

	select {
	case send <- h.ctrl.State():
	default:
	}
	writePump(conn, clientID, send, done)

	unsubscribe()
	conn.Close()
	log.Printf("[HTTP] websocket client disconnected: %s", clientID)
}

// readPump читает входящие сообщения только ради pong и закрытия соединения
func readPump(conn *websocket.Conn, clientID string) {
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[HTTP] websocket error for %s: %v", clientID, err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, clientID string, send <-chan entity.State, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case s := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			msg := WebSocketMessage{
				Type:      "STATE",
				Payload:   toStateResponse(s),
				ClientID:  clientID,
				Timestamp: time.Now().Unix(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
