package service

import (
	"context"
	"fmt"
	"sort"

	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
)

// UpdatePresence upserts the caller's display info and marks them seen now.
// The cursor is cleared; clients re-send it after every refresh. A user who is
// already present keeps their color.
func (s *PresentationService) UpdatePresence(ctx context.Context, presentationID, userID string, info model.PresenceInfo) (*model.ActiveCollaboratorInfo, error) {
	var (
		color string
		out   model.ActiveCollaboratorInfo
	)
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if p.ActiveCollaborators == nil {
			p.ActiveCollaborators = map[string]model.ActiveCollaboratorInfo{}
		}
		entry, ok := p.ActiveCollaborators[userID]
		if !ok || entry.Color == "" {
			// Allocated once per call so retries do not burn palette slots.
			if color == "" {
				color = s.Colors.Next()
			}
			entry.Color = color
		}
		entry.ID = userID
		entry.Name = info.Name
		entry.ProfilePicture = info.ProfilePicture
		entry.Cursor = nil
		entry.LastSeen = s.now()
		p.ActiveCollaborators[userID] = entry
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCursorPosition touches only the cursor and lastSeen of an existing
// presence entry.
func (s *PresentationService) UpdateCursorPosition(ctx context.Context, presentationID, userID string, cursor model.CursorPosition) error {
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		entry, ok := p.ActiveCollaborators[userID]
		if !ok {
			return fmt.Errorf("%w: no presence for user %s", ErrNotFound, userID)
		}
		if _, err := findSlide(p, cursor.SlideID); err != nil {
			return err
		}
		c := cursor
		entry.Cursor = &c
		entry.LastSeen = s.now()
		p.ActiveCollaborators[userID] = entry
		return nil
	})
	return err
}

func (s *PresentationService) RemovePresence(ctx context.Context, presentationID, userID string) error {
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if _, ok := p.ActiveCollaborators[userID]; !ok {
			return repository.ErrNoChange
		}
		delete(p.ActiveCollaborators, userID)
		return nil
	})
	return err
}

// ActiveCollaborators lists presence entries seen within PresenceStaleAfter.
// Stale entries are hidden, not deleted.
func (s *PresentationService) ActiveCollaborators(ctx context.Context, presentationID string) ([]model.ActiveCollaboratorInfo, error) {
	p, err := s.Store.Load(ctx, presentationID)
	if err != nil {
		return nil, storeErr(err, presentationID)
	}
	stale := s.PresenceStaleAfter
	if stale <= 0 {
		stale = DefaultPresenceStaleAfter
	}
	cutoff := s.now().Add(-stale)

	out := make([]model.ActiveCollaboratorInfo, 0, len(p.ActiveCollaborators))
	for _, c := range p.ActiveCollaborators {
		if c.LastSeen.Before(cutoff) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
