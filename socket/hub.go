package socket

import (
	"context"
	"encoding/json"
	"sync"

	"collabdeck/internal/presentation/model"
	"collabdeck/pkg/logger"
)

const (
	JoinType           = "JOIN"            // Presence heartbeat from an editor
	LeaveType          = "LEAVE"           // Editor closed the deck
	CursorType         = "CURSOR"          // Cursor moved
	PresenceUpdateType = "PRESENCE_UPDATE" // Snapshot of active collaborators
	MetadataType       = "METADATA"        // Title changed

	LockAcquiredType = "LOCK_ACQUIRED"
	LockReleasedType = "LOCK_RELEASED"
	LocksExpiredType = "LOCKS_EXPIRED"

	SlideAddedType     = "SLIDE_ADDED"
	SlideUpdatedType   = "SLIDE_UPDATED"
	SlideDeletedType   = "SLIDE_DELETED"
	ElementAddedType   = "ELEMENT_ADDED"
	ElementUpdatedType = "ELEMENT_UPDATED"
	ElementDeletedType = "ELEMENT_DELETED"

	CommentType       = "COMMENT"        // New comment added
	CommentUpdateType = "COMMENT_UPDATE" // Comment resolved

	AccessChangedType   = "ACCESS_CHANGED"
	SettingsChangedType = "SETTINGS_CHANGED"
	NotificationType    = "NOTIFICATION"
)

type WSMessage struct {
	Type           string          `json:"type"`
	PresentationID string          `json:"presentation_id"`
	UserID         string          `json:"user_id"`
	Payload        json.RawMessage `json:"payload"`
}

// PresenceService is the part of the presentation service the hub drives on
// behalf of connected editors.
type PresenceService interface {
	RoleFor(ctx context.Context, presentationID, userID string) (model.Role, error)
	UpdatePresence(ctx context.Context, presentationID, userID string, info model.PresenceInfo) (*model.ActiveCollaboratorInfo, error)
	UpdateCursorPosition(ctx context.Context, presentationID, userID string, cursor model.CursorPosition) error
	RemovePresence(ctx context.Context, presentationID, userID string) error
	ActiveCollaborators(ctx context.Context, presentationID string) ([]model.ActiveCollaboratorInfo, error)
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Presence   PresenceService
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.PresentationID] == nil {
				h.Rooms[client.PresentationID] = make(map[*Client]bool)
			}
			h.Rooms[client.PresentationID][client] = true
			h.mu.Unlock()

			// The client is in the room now, so it receives the snapshot its own
			// join produces.
			go h.join(client)

		case client := <-h.Unregister:
			h.mu.Lock()
			lastTab := false
			if _, ok := h.Rooms[client.PresentationID][client]; ok {
				delete(h.Rooms[client.PresentationID], client)
				close(client.Send)
				lastTab = h.connections(client.PresentationID, client.UserID) == 0
				if len(h.Rooms[client.PresentationID]) == 0 {
					delete(h.Rooms, client.PresentationID)
					logger.Sugar.Infof("Closed empty room: %s", client.PresentationID)
				}
			}
			h.mu.Unlock()

			// Removed inline so a reconnect queued behind this unregister joins
			// after the entry is gone, not before.
			if lastTab {
				h.leave(client)
			}

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.PresentationID]))
			for client := range h.Rooms[msg.PresentationID] {
				if client.UserID != msg.UserID {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			// Only this goroutine closes Send channels, so sending outside the
			// lock is safe here.
			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
					go func(c *Client) { h.Unregister <- c }(client)
				}
			}
		}
	}
}

func (h *Hub) join(client *Client) {
	if h.Presence == nil {
		return
	}
	info := model.PresenceInfo{Name: client.Name, ProfilePicture: client.Avatar}
	if _, err := h.Presence.UpdatePresence(context.Background(), client.PresentationID, client.UserID, info); err != nil {
		logger.Sugar.Errorf("Failed to record presence of %s on %s: %v", client.UserID, client.PresentationID, err)
		return
	}
	h.broadcastPresenceUpdate(client.PresentationID)
}

// connections counts userID's open sockets in a room. Callers hold mu.
func (h *Hub) connections(presentationID, userID string) int {
	n := 0
	for c := range h.Rooms[presentationID] {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// leave drops the presence entry of a user whose last connection closed.
func (h *Hub) leave(client *Client) {
	if h.Presence == nil {
		return
	}
	if err := h.Presence.RemovePresence(context.Background(), client.PresentationID, client.UserID); err != nil {
		logger.Sugar.Warnf("Failed to remove presence of %s: %v", client.UserID, err)
		return
	}
	h.broadcastPresenceUpdate(client.PresentationID)
}

// Publish queues an event for everyone in the room except userID.
func (h *Hub) Publish(presentationID, userID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", eventType, err)
		return
	}
	h.Broadcast <- WSMessage{Type: eventType, PresentationID: presentationID, UserID: userID, Payload: raw}
}

func (h *Hub) PresenceChanged(presentationID string) {
	h.broadcastPresenceUpdate(presentationID)
}

// Notify delivers n to every open connection of userID, whatever room it is in.
func (h *Hub) Notify(userID string, n model.Notification) {
	raw, err := json.Marshal(n)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling notification: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: NotificationType, PresentationID: n.PresentationID, UserID: userID, Payload: raw})

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.Rooms {
		for client := range clients {
			if client.UserID != userID {
				continue
			}
			select {
			case client.Send <- msg:
			default:
				logger.Sugar.Warnf("Client %s's send buffer was full during notification.", client.UserID)
			}
		}
	}
}

// CloseRoom disconnects everyone editing a presentation that was deleted.
func (h *Hub) CloseRoom(presentationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.Rooms[presentationID]; ok {
		for client := range clients {
			client.Conn.Close() // This will trigger the readPump to exit and unregister safely
		}
	}
}

func (h *Hub) broadcastPresenceUpdate(presentationID string) {
	if h.Presence == nil {
		return
	}
	collaborators, err := h.Presence.ActiveCollaborators(context.Background(), presentationID)
	if err != nil {
		logger.Sugar.Errorf("Failed to read presence for %s: %v", presentationID, err)
		return
	}
	payload, err := json.Marshal(collaborators)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, PresentationID: presentationID, Payload: payload})

	// Sends happen under the lock so Unregister cannot close a channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.Rooms[presentationID] {
		select {
		case client.Send <- msg:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
