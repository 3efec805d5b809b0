// Package activity records the append-only team and presentation activity
// feeds.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type Scope string

const (
	ScopeTeam         Scope = "team"
	ScopePresentation Scope = "presentation"
)

type ActionType string

const (
	PresentationCreated     ActionType = "presentation_created"
	PresentationDeleted     ActionType = "presentation_deleted"
	PresentationRenamed     ActionType = "presentation_renamed"
	CollaboratorAdded       ActionType = "collaborator_added"
	CollaboratorRemoved     ActionType = "collaborator_removed"
	CollaboratorRoleChanged ActionType = "collaborator_role_changed"
	SettingsChanged         ActionType = "settings_changed"
	OwnershipTransferred    ActionType = "ownership_transferred"
	CommentAdded            ActionType = "comment_added"
	CommentResolved         ActionType = "comment_resolved"
	SlideAdded              ActionType = "slide_added"
	SlideDeleted            ActionType = "slide_deleted"
)

var knownActions = map[ActionType]bool{
	PresentationCreated: true, PresentationDeleted: true, PresentationRenamed: true,
	CollaboratorAdded: true, CollaboratorRemoved: true, CollaboratorRoleChanged: true,
	SettingsChanged: true, OwnershipTransferred: true,
	CommentAdded: true, CommentResolved: true,
	SlideAdded: true, SlideDeleted: true,
}

func (a ActionType) Valid() bool { return knownActions[a] }

type Entry struct {
	ID         string         `json:"id" bson:"_id"`
	Scope      Scope          `json:"scope" bson:"scope"`
	ScopeID    string         `json:"scope_id" bson:"scope_id"`
	ActorID    string         `json:"actor_id" bson:"actor_id"`
	ActionType ActionType     `json:"action_type" bson:"action_type"`
	TargetID   *string        `json:"target_id,omitempty" bson:"target_id,omitempty"`
	Details    map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}

// Repository is append-only: there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// List returns entries for one scope ordered by CreatedAt descending.
	List(ctx context.Context, scope Scope, scopeID string, limit, offset int) ([]Entry, error)
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidEntry = errors.New("activity: invalid entry")

type Logger struct {
	Repo Repository
	Now  func() time.Time
}

func NewLogger(repo Repository) *Logger {
	return &Logger{Repo: repo, Now: func() time.Time { return time.Now().UTC() }}
}

func (l *Logger) LogPresentation(ctx context.Context, presentationID, actorID string, action ActionType, targetID string, details map[string]any) (*Entry, error) {
	return l.append(ctx, ScopePresentation, presentationID, actorID, action, targetID, details)
}

func (l *Logger) LogTeam(ctx context.Context, teamID, actorID string, action ActionType, targetID string, details map[string]any) (*Entry, error) {
	return l.append(ctx, ScopeTeam, teamID, actorID, action, targetID, details)
}

func (l *Logger) ListPresentation(ctx context.Context, presentationID string, limit, offset int) ([]Entry, error) {
	return l.Repo.List(ctx, ScopePresentation, presentationID, clampLimit(limit), max(offset, 0))
}

func (l *Logger) ListTeam(ctx context.Context, teamID string, limit, offset int) ([]Entry, error) {
	return l.Repo.List(ctx, ScopeTeam, teamID, clampLimit(limit), max(offset, 0))
}

func (l *Logger) append(ctx context.Context, scope Scope, scopeID, actorID string, action ActionType, targetID string, details map[string]any) (*Entry, error) {
	if scopeID == "" || actorID == "" || !action.Valid() {
		return nil, fmt.Errorf("%w: scope=%s id=%q actor=%q action=%q", ErrInvalidEntry, scope, scopeID, actorID, action)
	}
	e := &Entry{
		ID:         ulid.Make().String(),
		Scope:      scope,
		ScopeID:    scopeID,
		ActorID:    actorID,
		ActionType: action,
		Details:    details,
		CreatedAt:  l.Now(),
	}
	if targetID != "" {
		e.TargetID = &targetID
	}
	if err := l.Repo.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
