package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"collabdeck/internal/activity"
	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
	userrepo "collabdeck/internal/user/repository"
	"collabdeck/socket"
)

func requireManager(p *model.Presentation, actorID string) error {
	if !canManage(p, actorID) {
		return fmt.Errorf("%w: only owners can change sharing", ErrPermissionDenied)
	}
	return nil
}

// InviteCollaborator grants an existing user editor or viewer access.
func (s *PresentationService) InviteCollaborator(ctx context.Context, actorID, presentationID, email string, role model.Role) (*model.CollaboratorChange, error) {
	if role != model.RoleEditor && role != model.RoleViewer {
		return nil, fmt.Errorf("%w: invited role must be editor or viewer", ErrValidation)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	// Check permission before touching the directory so non-owners cannot
	// discover which emails exist.
	current, err := s.Store.Load(ctx, presentationID)
	if err != nil {
		return nil, storeErr(err, presentationID)
	}
	if err := requireManager(current, actorID); err != nil {
		return nil, err
	}

	invitee, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no user with email %s", ErrNotFound, email)
		}
		return nil, err
	}

	var change model.CollaboratorChange
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireManager(p, actorID); err != nil {
			return err
		}
		if invitee.ID == p.CreatorID {
			return fmt.Errorf("%w: the creator already owns this presentation", ErrValidation)
		}
		old := p.Access[invitee.ID]
		if old == model.RoleOwner {
			return fmt.Errorf("%w: user is already an owner", ErrValidation)
		}
		change = model.CollaboratorChange{UserID: invitee.ID, OldRole: old, NewRole: role}
		if old == role {
			return repository.ErrNoChange
		}
		if p.Access == nil {
			p.Access = map[string]model.Role{}
		}
		p.Access[invitee.ID] = role
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change.OldRole == change.NewRole {
		return &change, nil
	}

	s.logActivity(ctx, p, actorID, activity.CollaboratorAdded, invitee.ID, map[string]any{"email": email, "role": string(role)})
	s.notify(invitee.ID, model.Notification{
		Type:           "invite",
		PresentationID: p.ID,
		ActorID:        actorID,
		Message:        fmt.Sprintf("You were invited to %q as %s", p.Title, role),
	})
	s.publish(p.ID, actorID, socket.AccessChangedType, []model.CollaboratorChange{change})
	return &change, nil
}

// UpdateCollaborators applies a batch of role changes; a nil role removes the
// user. The creator is skipped whatever the request says.
func (s *PresentationService) UpdateCollaborators(ctx context.Context, actorID, presentationID string, changes map[string]*model.Role) ([]model.CollaboratorChange, error) {
	userIDs := make([]string, 0, len(changes))
	for id, r := range changes {
		// Owners are only made through TransferOwnership.
		if r != nil && *r != model.RoleEditor && *r != model.RoleViewer {
			return nil, fmt.Errorf("%w: role %q cannot be assigned to %s", ErrValidation, *r, id)
		}
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	var applied []model.CollaboratorChange
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		applied = applied[:0]
		if err := requireManager(p, actorID); err != nil {
			return err
		}
		for _, id := range userIDs {
			if id == "" || id == p.CreatorID {
				continue
			}
			old, had := p.Access[id]
			next := changes[id]
			switch {
			case next == nil && had:
				delete(p.Access, id)
				applied = append(applied, model.CollaboratorChange{UserID: id, OldRole: old, Removed: true})
			case next != nil && *next != old:
				if p.Access == nil {
					p.Access = map[string]model.Role{}
				}
				p.Access[id] = *next
				applied = append(applied, model.CollaboratorChange{UserID: id, OldRole: old, NewRole: *next})
			}
		}
		if len(applied) == 0 {
			return repository.ErrNoChange
		}
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return []model.CollaboratorChange{}, nil
	}

	for _, c := range applied {
		action := activity.CollaboratorRoleChanged
		details := map[string]any{"from": string(c.OldRole), "to": string(c.NewRole)}
		switch {
		case c.Removed:
			action = activity.CollaboratorRemoved
			details = map[string]any{"role": string(c.OldRole)}
		case c.OldRole == "":
			action = activity.CollaboratorAdded
			details = map[string]any{"role": string(c.NewRole)}
		}
		s.logActivity(ctx, p, actorID, action, c.UserID, details)
	}
	s.publish(p.ID, actorID, socket.AccessChangedType, applied)
	return applied, nil
}

// UpdateSettings changes visibility, password protection and commenting.
// The returned settings never carry the password hash.
func (s *PresentationService) UpdateSettings(ctx context.Context, actorID, presentationID string, upd model.SettingsUpdate) (model.Settings, error) {
	// Hashing is slow, so it happens once outside the retry loop.
	var newHash string
	if upd.Password != nil && *upd.Password != "" {
		h, err := s.hashPassword(*upd.Password)
		if err != nil {
			return model.Settings{}, err
		}
		newHash = h
	}

	var before model.Settings
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireManager(p, actorID); err != nil {
			return err
		}
		before = p.Settings
		next := p.Settings

		if upd.CommentsAllowed != nil {
			next.CommentsAllowed = *upd.CommentsAllowed
		}
		if upd.IsPublic != nil {
			next.IsPublic = *upd.IsPublic
		}
		if upd.PasswordProtected != nil {
			next.PasswordProtected = *upd.PasswordProtected
		}
		if upd.Password != nil && *upd.Password != "" && !next.PasswordProtected {
			return fmt.Errorf("%w: a password needs password protection enabled", ErrValidation)
		}

		switch {
		case !next.IsPublic:
			// Private decks are never protected, whatever was asked for.
			next.PasswordProtected = false
			next.PasswordHash = ""
		case !next.PasswordProtected:
			next.PasswordHash = ""
		case newHash != "":
			next.PasswordHash = newHash
		case next.PasswordHash == "":
			return fmt.Errorf("%w: password protection requires a password", ErrValidation)
		}

		if next == p.Settings {
			return repository.ErrNoChange
		}
		p.Settings = next
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Settings{}, err
	}

	out := p.Settings
	out.PasswordHash = ""
	if p.Settings != before {
		s.logActivity(ctx, p, actorID, activity.SettingsChanged, "", settingsDetails(before, p.Settings))
		s.publish(p.ID, actorID, socket.SettingsChangedType, out)
	}
	return out, nil
}

func settingsDetails(before, after model.Settings) map[string]any {
	d := map[string]any{}
	if before.IsPublic != after.IsPublic {
		d["is_public"] = after.IsPublic
	}
	if before.PasswordProtected != after.PasswordProtected {
		d["password_protected"] = after.PasswordProtected
	}
	if before.PasswordHash != after.PasswordHash && after.PasswordHash != "" {
		d["password_changed"] = true
	}
	if before.CommentsAllowed != after.CommentsAllowed {
		d["comments_allowed"] = after.CommentsAllowed
	}
	return d
}

// TransferOwnership makes an existing collaborator the creator. The previous
// creator stays on as an owner.
func (s *PresentationService) TransferOwnership(ctx context.Context, actorID, presentationID, newOwnerID string) error {
	var (
		previous string
		oldRole  model.Role
	)
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if p.CreatorID != actorID {
			return fmt.Errorf("%w: only the creator can transfer ownership", ErrPermissionDenied)
		}
		if newOwnerID == actorID {
			return repository.ErrNoChange
		}
		if _, ok := p.Access[newOwnerID]; !ok {
			return fmt.Errorf("%w: %s is not a collaborator", ErrValidation, newOwnerID)
		}
		previous = p.CreatorID
		oldRole = p.Access[newOwnerID]
		if p.Access == nil {
			p.Access = map[string]model.Role{}
		}
		p.Access[previous] = model.RoleOwner
		p.Access[newOwnerID] = model.RoleOwner
		p.CreatorID = newOwnerID
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	if previous == "" {
		return nil
	}

	s.logActivity(ctx, p, actorID, activity.OwnershipTransferred, newOwnerID, map[string]any{"from": previous})
	s.notify(newOwnerID, model.Notification{
		Type:           "ownership",
		PresentationID: p.ID,
		ActorID:        actorID,
		Message:        fmt.Sprintf("You now own %q", p.Title),
	})
	s.publish(p.ID, actorID, socket.AccessChangedType, []model.CollaboratorChange{{UserID: newOwnerID, OldRole: oldRole, NewRole: model.RoleOwner}})
	return nil
}

// VerifyAccess reports whether userID may open the presentation, given the
// password they supplied. Members never need the password.
func (s *PresentationService) VerifyAccess(ctx context.Context, presentationID, userID, password string) (bool, error) {
	_, _, err := s.Authorize(ctx, presentationID, userID, model.RoleViewer, password)
	if errors.Is(err, ErrPermissionDenied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
