package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/Gamma101/web-chat/internal/chat"
	"github.com/Gamma101/web-chat/internal/model"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	maxMsgSize    = 1 << 20
)

// Envelope frames WS JSON in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type sendPayload struct {
	Text    string `json:"text"`
	ReplyID *int64 `json:"reply_id,omitempty"`
}

type threadPayload struct {
	Messages []model.Message         `json:"messages"`
	Replies  map[int64]model.Message `json:"replies"`
}

// WSUpgrade gates the route to real websocket upgrades.
func WSUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// handleWS runs one conversation session: /ws?token=<jwt>&peer=<userID>.
// The session owns a ConversationStore; every change notification pushes
// the re-materialized thread down the socket, so the client never polls.
func (s *Server) handleWS(c *websocket.Conn) {
	token := c.Query("token")
	peer := c.Query("peer")
	if token == "" || peer == "" {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":"missing token or peer"}`))
		_ = c.Close()
		return
	}
	sess, err := s.sessions.Verify(token)
	if err != nil {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":"invalid token"}`))
		_ = c.Close()
		return
	}

	wsSessions.Inc()
	defer wsSessions.Dec()

	send := make(chan []byte, 8)
	cs := chat.NewConversationStore(s.records, s.blobs, s.feed, s.log, sess.UserID, peer)
	cs.OnUpdate(func(msgs []model.Message) {
		payload, err := json.Marshal(threadPayload{Messages: msgs, Replies: cs.Replies()})
		if err != nil {
			return
		}
		env, _ := json.Marshal(Envelope{Type: "thread", Payload: payload})
		select {
		case send <- env:
		default:
			// drop if the writer is backed up; the next notification
			// carries the full thread anyway
		}
	})
	defer cs.Close()

	if err := cs.Open(context.Background()); err != nil {
		s.log.Warnw("open conversation failed", "self", sess.UserID, "peer", peer, "err", err)
		_ = c.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case b, ok := <-send:
				if !ok {
					return
				}
				_ = c.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
					s.log.Debugw("ws write failed", "err", err)
					return
				}
			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	c.SetReadLimit(maxMsgSize)
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if env.Type != "send" {
			continue
		}
		var p sendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			continue
		}
		if err := cs.Send(context.Background(), p.Text, nil, "", p.ReplyID); err != nil {
			msg, _ := json.Marshal(err.Error())
			out, _ := json.Marshal(Envelope{Type: "error", Payload: msg})
			select {
			case send <- out:
			default:
			}
		}
	}
	close(done)
}
