package service

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tieubaoca/ragchat-be/types"
)

// WebSocketService exposes the chat pipeline over a websocket: each "chat"
// request streams back one "chat" frame per completion fragment, closed by
// a "done" frame.
type WebSocketService struct {
	rag      *RAGService
	upgrader websocket.Upgrader
}

func NewWebSocketService(rag *RAGService) *WebSocketService {
	return &WebSocketService{
		rag: rag,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
	}
}

func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}
	defer conn.Close()

	// Set connection properties
	conn.SetReadLimit(512 * 1024) // 512KB max message size
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			log.Println("Unmarshal error:", err)
			s.writeError(conn, "invalid request")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketChat:
			payloadBytes, err := json.Marshal(req.Payload)
			if err != nil {
				log.Println("Marshal error:", err)
				s.writeError(conn, "invalid payload")
				continue
			}
			var payload types.WebSocketChatPayload
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				log.Println("Unmarshal error:", err)
				s.writeError(conn, "invalid payload")
				continue
			}

			err = s.rag.Answer(r.Context(), payload.Messages, func(fragment string) error {
				return conn.WriteJSON(types.WebSocketResponse{
					Type:    types.TypeWebsocketChat,
					Payload: types.WebSocketChatResponse{Delta: fragment},
				})
			})
			if err != nil {
				log.Println("AI error:", err)
				s.writeError(conn, "error processing message")
				continue
			}
			if err := conn.WriteJSON(types.WebSocketResponse{Type: types.TypeWebsocketDone}); err != nil {
				log.Println("Write error:", err)
				return
			}
		case types.TypeWebsocketPing:
			if err := conn.WriteJSON(types.WebSocketResponse{Type: types.TypeWebsocketPong}); err != nil {
				log.Println("Write error:", err)
				return
			}
		default:
			log.Println("Invalid message type:", req.Type)
		}
	}
}

func (s *WebSocketService) writeError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: message,
	}); err != nil {
		log.Println("Write error:", err)
	}
}

func (s *WebSocketService) Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
