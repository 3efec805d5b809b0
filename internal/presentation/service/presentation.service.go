package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collabdeck/internal/activity"
	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
	userrepo "collabdeck/internal/user/repository"
	"collabdeck/pkg/logger"
	"collabdeck/socket"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultLockDuration       = 30 * time.Second
	DefaultPresenceStaleAfter = time.Minute
	defaultTitle              = "Untitled Presentation"
)

// Broadcaster fans events out to the editors connected to a presentation.
type Broadcaster interface {
	Publish(presentationID, userID, eventType string, payload any)
	PresenceChanged(presentationID string)
	CloseRoom(presentationID string)
}

// Notifier delivers fire-and-forget notifications to a single user.
type Notifier interface {
	Notify(userID string, n model.Notification)
}

// UserDirectory resolves invitees. It is backed by the external identity
// provider.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*userrepo.User, error)
}

type PresentationService struct {
	Store    repository.Store
	Activity *activity.Logger
	Users    UserDirectory
	Hub      Broadcaster
	Notifier Notifier
	Colors   *ColorAllocator

	LockDuration       time.Duration
	PresenceStaleAfter time.Duration
	HashCost           int

	Now   func() time.Time
	NewID func() string
}

func NewPresentationService(store repository.Store, activityLogger *activity.Logger, users UserDirectory, hub Broadcaster, notifier Notifier) *PresentationService {
	return &PresentationService{
		Store:              store,
		Activity:           activityLogger,
		Users:              users,
		Hub:                hub,
		Notifier:           notifier,
		Colors:             NewColorAllocator(nil),
		LockDuration:       DefaultLockDuration,
		PresenceStaleAfter: DefaultPresenceStaleAfter,
		HashCost:           bcrypt.DefaultCost,
		Now:                func() time.Time { return time.Now().UTC() },
		NewID:              uuid.NewString,
	}
}

func (s *PresentationService) now() time.Time {
	return s.Now()
}

func (s *PresentationService) lease() time.Duration {
	if s.LockDuration <= 0 {
		return DefaultLockDuration
	}
	return s.LockDuration
}

func (s *PresentationService) tx(ctx context.Context, presentationID string, fn repository.TxFunc) (*model.Presentation, error) {
	p, err := repository.RunTransaction(ctx, s.Store, presentationID, fn)
	return p, storeErr(err, presentationID)
}

func (s *PresentationService) publish(presentationID, userID, eventType string, payload any) {
	if s.Hub != nil {
		s.Hub.Publish(presentationID, userID, eventType, payload)
	}
}

func (s *PresentationService) notify(userID string, n model.Notification) {
	if s.Notifier != nil {
		s.Notifier.Notify(userID, n)
	}
}

// logActivity records a side effect of a committed mutation. Failures are
// logged and never undo or fail the mutation.
func (s *PresentationService) logActivity(ctx context.Context, p *model.Presentation, actorID string, action activity.ActionType, targetID string, details map[string]any) {
	if s.Activity == nil {
		return
	}
	if _, err := s.Activity.LogPresentation(ctx, p.ID, actorID, action, targetID, details); err != nil {
		logger.Sugar.Errorf("Failed to record %s activity on presentation %s: %v", action, p.ID, err)
	}
	if p.TeamID != nil && *p.TeamID != "" && teamVisible(action) {
		if _, err := s.Activity.LogTeam(ctx, *p.TeamID, actorID, action, p.ID, details); err != nil {
			logger.Sugar.Errorf("Failed to record %s activity on team %s: %v", action, *p.TeamID, err)
		}
	}
}

func teamVisible(action activity.ActionType) bool {
	switch action {
	case activity.PresentationCreated, activity.PresentationDeleted, activity.PresentationRenamed, activity.OwnershipTransferred:
		return true
	}
	return false
}

func findSlide(p *model.Presentation, slideID string) (*model.Slide, error) {
	slide := p.Slide(slideID)
	if slide == nil {
		return nil, fmt.Errorf("%w: slide %s", ErrNotFound, slideID)
	}
	return slide, nil
}

func findElement(p *model.Presentation, slideID, elementID string) (*model.SlideElement, error) {
	slide, err := findSlide(p, slideID)
	if err != nil {
		return nil, err
	}
	el := slide.Element(elementID)
	if el == nil {
		return nil, fmt.Errorf("%w: element %s", ErrNotFound, elementID)
	}
	return el, nil
}

func requireRole(p *model.Presentation, userID string, min model.Role) error {
	if !p.RoleOf(userID).AtLeast(min) {
		return fmt.Errorf("%w: %s role required", ErrPermissionDenied, min)
	}
	return nil
}

// canManage reports whether userID may change sharing and settings.
func canManage(p *model.Presentation, userID string) bool {
	return p.RoleOf(userID) == model.RoleOwner
}

// Authorize loads the presentation and checks that userID holds at least min.
// Anonymous-to-the-deck users get viewer rights on public presentations,
// provided the password matches when one is required.
func (s *PresentationService) Authorize(ctx context.Context, presentationID, userID string, min model.Role, password string) (*model.Presentation, model.Role, error) {
	p, err := s.Store.Load(ctx, presentationID)
	if err != nil {
		return nil, "", storeErr(err, presentationID)
	}
	role := p.RoleOf(userID)
	if role == "" && p.Settings.IsPublic {
		if !p.Settings.PasswordProtected || passwordMatches(p.Settings, password) {
			role = model.RoleViewer
		}
	}
	if !role.AtLeast(min) {
		return nil, role, fmt.Errorf("%w: %s role required", ErrPermissionDenied, min)
	}
	return p, role, nil
}

// RoleFor is the viewer-level check used when an editor opens a live session.
func (s *PresentationService) RoleFor(ctx context.Context, presentationID, userID string) (model.Role, error) {
	_, role, err := s.Authorize(ctx, presentationID, userID, model.RoleViewer, "")
	return role, err
}

// GetPresentation returns the deck for rendering. Expired locks are swept first
// so readers never see a lease that has already run out.
func (s *PresentationService) GetPresentation(ctx context.Context, presentationID, userID, password string) (*model.Presentation, model.Role, error) {
	if _, _, err := s.Authorize(ctx, presentationID, userID, model.RoleViewer, password); err != nil {
		return nil, "", err
	}
	if _, err := s.ReleaseExpiredLocks(ctx, presentationID); err != nil {
		logger.Sugar.Warnf("Failed to sweep expired locks on %s: %v", presentationID, err)
	}
	return s.Authorize(ctx, presentationID, userID, model.RoleViewer, password)
}

func (s *PresentationService) CreatePresentation(ctx context.Context, userID string, req model.CreatePresentationRequest) (*model.Presentation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle
	}
	now := s.now()
	p := &model.Presentation{
		ID:        s.NewID(),
		Title:     title,
		CreatorID: userID,
		TeamID:    req.TeamID,
		Access:    map[string]model.Role{userID: model.RoleOwner},
		Settings:  model.Settings{CommentsAllowed: true},
		Slides: []model.Slide{{
			ID:          s.NewID(),
			SlideNumber: 1,
			Elements:    []model.SlideElement{},
			Comments:    []model.SlideComment{},
		}},
		ActiveCollaborators: map[string]model.ActiveCollaboratorInfo{},
		CreatedAt:           now,
		LastUpdatedAt:       now,
	}
	if err := s.Store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logActivity(ctx, p, userID, activity.PresentationCreated, "", map[string]any{"title": title})
	return p, nil
}

func (s *PresentationService) ListPresentations(ctx context.Context, userID string) ([]model.Summary, error) {
	return s.Store.ListForUser(ctx, userID)
}

func (s *PresentationService) RenamePresentation(ctx context.Context, actorID, presentationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	var oldTitle string
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		oldTitle = p.Title
		if p.Title == title {
			return repository.ErrNoChange
		}
		p.Title = title
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	if oldTitle != title {
		s.logActivity(ctx, p, actorID, activity.PresentationRenamed, "", map[string]any{"from": oldTitle, "to": title})
		s.publish(p.ID, actorID, socket.MetadataType, map[string]string{"title": title})
	}
	return nil
}

// DeletePresentation soft-deletes by default; hard removes the row. Owners only.
func (s *PresentationService) DeletePresentation(ctx context.Context, actorID, presentationID string, hard bool) error {
	p, err := s.Store.Load(ctx, presentationID)
	if err != nil {
		return storeErr(err, presentationID)
	}
	if !canManage(p, actorID) {
		return fmt.Errorf("%w: only owners can delete", ErrPermissionDenied)
	}
	if hard {
		err = s.Store.Delete(ctx, presentationID)
	} else {
		err = s.Store.SoftDelete(ctx, presentationID)
	}
	if err != nil {
		return storeErr(err, presentationID)
	}
	s.logActivity(ctx, p, actorID, activity.PresentationDeleted, "", map[string]any{"hard": hard})
	if s.Hub != nil {
		s.Hub.CloseRoom(presentationID)
	}
	return nil
}

func (s *PresentationService) ListActivity(ctx context.Context, actorID, presentationID string, limit, offset int) ([]activity.Entry, error) {
	if _, _, err := s.Authorize(ctx, presentationID, actorID, model.RoleViewer, ""); err != nil {
		return nil, err
	}
	if s.Activity == nil {
		return []activity.Entry{}, nil
	}
	return s.Activity.ListPresentation(ctx, presentationID, limit, offset)
}

func passwordMatches(st model.Settings, password string) bool {
	if st.PasswordHash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)) == nil
}

func (s *PresentationService) hashPassword(password string) (string, error) {
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	// bcrypt only reads the first 72 bytes.
	if len(password) > 72 {
		return "", fmt.Errorf("%w: password is too long", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ListTeamActivity returns a team's feed to anyone with access to at least one
// of the team's presentations.
func (s *PresentationService) ListTeamActivity(ctx context.Context, actorID, teamID string, limit, offset int) ([]activity.Entry, error) {
	decks, err := s.Store.ListForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, d := range decks {
		if d.TeamID != nil && *d.TeamID == teamID {
			member = true
			break
		}
	}
	if !member {
		return nil, fmt.Errorf("%w: not a member of team %s", ErrPermissionDenied, teamID)
	}
	if s.Activity == nil {
		return []activity.Entry{}, nil
	}
	return s.Activity.ListTeam(ctx, teamID, limit, offset)
}
