package model

import (
	"time"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// rank orders roles so callers can ask for a minimum role.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants at least the rights of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank() && r.rank() > 0
}

type Settings struct {
	IsPublic          bool   `json:"is_public"`
	PasswordProtected bool   `json:"password_protected"`
	PasswordHash      string `json:"password_hash,omitempty"`
	CommentsAllowed   bool   `json:"comments_allowed"`
}

type Presentation struct {
	ID                  string                            `json:"id"`
	Title               string                            `json:"title"`
	CreatorID           string                            `json:"creator_id"`
	TeamID              *string                           `json:"team_id,omitempty"`
	Access              map[string]Role                   `json:"access"`
	Settings            Settings                          `json:"settings"`
	Version             int64                             `json:"version"`
	Slides              []Slide                           `json:"slides"`
	ActiveCollaborators map[string]ActiveCollaboratorInfo `json:"active_collaborators"`
	Deleted             bool                              `json:"deleted,omitempty"`
	CreatedAt           time.Time                         `json:"created_at"`
	LastUpdatedAt       time.Time                         `json:"last_updated_at"`
}

// RoleOf returns the access role of userID. The creator is always an owner.
func (p *Presentation) RoleOf(userID string) Role {
	if userID != "" && userID == p.CreatorID {
		return RoleOwner
	}
	return p.Access[userID]
}

func (p *Presentation) Slide(slideID string) *Slide {
	for i := range p.Slides {
		if p.Slides[i].ID == slideID {
			return &p.Slides[i]
		}
	}
	return nil
}

// NextSlideNumber appends after the highest number in use; numbers are not
// compacted when a slide is deleted.
func (p *Presentation) NextSlideNumber() int {
	max := 0
	for _, s := range p.Slides {
		if s.SlideNumber > max {
			max = s.SlideNumber
		}
	}
	return max + 1
}

type Background struct {
	Color    string `json:"color,omitempty"`
	Gradient string `json:"gradient,omitempty"`
}

type Slide struct {
	ID           string         `json:"id"`
	SlideNumber  int            `json:"slide_number"`
	Elements     []SlideElement `json:"elements"`
	SpeakerNotes string         `json:"speaker_notes"`
	Comments     []SlideComment `json:"comments"`
	Background   Background     `json:"background"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
}

func (s *Slide) Element(elementID string) *SlideElement {
	for i := range s.Elements {
		if s.Elements[i].ID == elementID {
			return &s.Elements[i]
		}
	}
	return nil
}

func (s *Slide) Comment(commentID string) *SlideComment {
	for i := range s.Comments {
		if s.Comments[i].ID == commentID {
			return &s.Comments[i]
		}
	}
	return nil
}

func (s *Slide) NextZIndex() int {
	z := 0
	for _, el := range s.Elements {
		if el.ZIndex >= z {
			z = el.ZIndex + 1
		}
	}
	return z
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SlideElement struct {
	ID            string            `json:"id"`
	Type          ElementType       `json:"type"`
	Content       ElementContent    `json:"content"`
	Position      Position          `json:"position"`
	Size          Size              `json:"size"`
	Style         map[string]string `json:"style,omitempty"`
	ZIndex        int               `json:"z_index"`
	LockedBy      *string           `json:"locked_by"`
	LockTimestamp *time.Time        `json:"lock_timestamp"`
}

// LockHolder returns the user holding a live lock on the element, or "" when
// the element is unlocked or its lease ran out at or before now.
func (e *SlideElement) LockHolder(now time.Time, lease time.Duration) string {
	if e.LockedBy == nil || *e.LockedBy == "" || e.LockTimestamp == nil {
		return ""
	}
	if !e.LockTimestamp.Add(lease).After(now) {
		return ""
	}
	return *e.LockedBy
}

// HasExpiredLock reports whether lock fields are set but no longer live.
func (e *SlideElement) HasExpiredLock(now time.Time, lease time.Duration) bool {
	if e.LockedBy == nil && e.LockTimestamp == nil {
		return false
	}
	return e.LockHolder(now, lease) == ""
}

func (e *SlideElement) Lock(userID string, now time.Time) {
	holder := userID
	ts := now
	e.LockedBy = &holder
	e.LockTimestamp = &ts
}

func (e *SlideElement) Unlock() {
	e.LockedBy = nil
	e.LockTimestamp = nil
}

type SlideComment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Resolved   bool      `json:"resolved"`
}

type CursorPosition struct {
	SlideID string  `json:"slide_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type ActiveCollaboratorInfo struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ProfilePicture string          `json:"profile_picture,omitempty"`
	Color          string          `json:"color"`
	Cursor         *CursorPosition `json:"cursor_position"`
	LastSeen       time.Time       `json:"last_seen"`
}

// PresenceInfo is the client-supplied part of a presence heartbeat.
type PresenceInfo struct {
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture"`
}

// Summary is the list-view projection of a presentation.
type Summary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatorID     string    `json:"creator_id"`
	TeamID        *string   `json:"team_id,omitempty"`
	Role          Role      `json:"role"`
	SlideCount    int       `json:"slide_count"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

func (p *Presentation) Summarize(userID string) Summary {
	return Summary{
		ID:            p.ID,
		Title:         p.Title,
		CreatorID:     p.CreatorID,
		TeamID:        p.TeamID,
		Role:          p.RoleOf(userID),
		SlideCount:    len(p.Slides),
		LastUpdatedAt: p.LastUpdatedAt,
	}
}

type Notification struct {
	Type           string `json:"type"`
	PresentationID string `json:"presentation_id"`
	ActorID        string `json:"actor_id"`
	Message        string `json:"message"`
}
