package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame exchanged over /ws. Clients send {"type": "question",
// "content": "..."}; the server replies with "status", "response" or "error".
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

const messageQuestion = "question"

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "err", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendMessage(ws, Message{Type: "error", Content: "invalid message"})
			continue
		}
		if msg.Type != messageQuestion {
			s.sendMessage(ws, Message{Type: "error", Content: fmt.Sprintf("unsupported message type %q", msg.Type)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	question := strings.TrimSpace(msg.Content)
	if question == "" {
		s.sendMessage(ws, Message{Type: "error", Content: "question must not be empty"})
		return
	}

	s.sendMessage(ws, Message{Type: "status", Content: "Thinking..."})

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	record, err := s.answerer.Answer(ctx, question)
	if err != nil {
		s.logger.Error("websocket question failed", "err", err)
		s.sendMessage(ws, Message{Type: "error", Content: models.PublicMessage(err)})
		return
	}
	s.sendMessage(ws, Message{Type: "response", Content: record.Answer, Data: record})
}

func (s *Server) sendMessage(ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.Debug("failed to send websocket message", "type", msg.Type, "err", err)
	}
}
