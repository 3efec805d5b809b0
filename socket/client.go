package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"collabdeck/internal/presentation/model"
	"collabdeck/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub            *Hub
	Conn           *websocket.Conn
	PresentationID string
	UserID         string
	Name           string
	Avatar         string
	Role           model.Role
	Send           chan []byte
}

// ServeWs upgrades an authenticated request into a live editing session on
// the presentation named by the presentationId query parameter.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	presentationID := r.URL.Query().Get("presentationId")
	if presentationID == "" {
		http.Error(w, "missing presentationId", http.StatusBadRequest)
		return
	}
	if hub.Presence == nil {
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}

	// Access is checked before the upgrade so a rejected user gets a plain
	// HTTP status instead of a socket that closes immediately.
	role, err := hub.Presence.RoleFor(r.Context(), presentationID, userID)
	if err != nil {
		logger.Sugar.Warnf("Connection rejected: user %s on presentation %s: %v", userID, presentationID, err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = userID
	}
	client := &Client{
		Hub:            hub,
		Conn:           conn,
		PresentationID: presentationID,
		UserID:         userID,
		Name:           name,
		Avatar:         r.URL.Query().Get("avatar"),
		Role:           role,
		Send:           make(chan []byte, 256),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		// The hub drops presence once the user's last connection is gone.
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Server-authoritative fields prevent spoofing.
		msg.PresentationID = c.PresentationID
		msg.UserID = c.UserID

		switch msg.Type {
		case JoinType:
			c.heartbeat(msg.Payload)

		case CursorType:
			var cursor model.CursorPosition
			if err := json.Unmarshal(msg.Payload, &cursor); err != nil {
				logger.Sugar.Warnf("Bad cursor payload from %s: %v", c.UserID, err)
				continue
			}
			if err := c.Hub.Presence.UpdateCursorPosition(context.Background(), c.PresentationID, c.UserID, cursor); err != nil {
				logger.Sugar.Warnf("Cursor update from %s on %s rejected: %v", c.UserID, c.PresentationID, err)
				continue
			}
			msg.Payload, _ = json.Marshal(cursor)
			c.Hub.Broadcast <- msg

		case LeaveType:
			return

		default:
			// Edits go through the HTTP API; the socket only carries presence.
			logger.Sugar.Warnf("Ignoring %q message from user %s", msg.Type, c.UserID)
		}
	}
}

func (c *Client) heartbeat(payload json.RawMessage) {
	var info model.PresenceInfo
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &info); err != nil {
			logger.Sugar.Warnf("Bad join payload from %s: %v", c.UserID, err)
		}
	}
	if info.Name == "" {
		info.Name = c.Name
	}
	if info.ProfilePicture == "" {
		info.ProfilePicture = c.Avatar
	}
	if _, err := c.Hub.Presence.UpdatePresence(context.Background(), c.PresentationID, c.UserID, info); err != nil {
		logger.Sugar.Errorf("Failed to refresh presence of %s: %v", c.UserID, err)
		return
	}
	c.Hub.broadcastPresenceUpdate(c.PresentationID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
