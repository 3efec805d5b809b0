package service

import (
	"context"
	"fmt"
	"strings"

	"collabdeck/internal/activity"
	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
	"collabdeck/socket"
)

type commentEvent struct {
	SlideID string              `json:"slide_id"`
	Comment *model.SlideComment `json:"comment"`
}

// AddComment appends a comment to a slide. Comments never touch element locks.
func (s *PresentationService) AddComment(ctx context.Context, presentationID, slideID, authorID string, req model.CommentRequest) (*model.SlideComment, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment text cannot be empty", ErrValidation)
	}
	commentID := s.NewID()

	var out model.SlideComment
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, authorID, model.RoleViewer); err != nil {
			return err
		}
		if !p.Settings.CommentsAllowed {
			return fmt.Errorf("%w: comments are disabled on this presentation", ErrValidation)
		}
		slide, err := findSlide(p, slideID)
		if err != nil {
			return err
		}
		now := s.now()
		out = model.SlideComment{
			ID:         commentID,
			AuthorID:   authorID,
			AuthorName: req.AuthorName,
			Text:       text,
			CreatedAt:  now,
		}
		slide.Comments = append(slide.Comments, out)
		p.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, p, authorID, activity.CommentAdded, commentID, map[string]any{"slide_id": slideID})
	s.publish(presentationID, authorID, socket.CommentType, commentEvent{SlideID: slideID, Comment: &out})
	return &out, nil
}

// ResolveComment marks a comment resolved. Resolving twice, or resolving a
// comment that does not exist, succeeds without doing anything.
func (s *PresentationService) ResolveComment(ctx context.Context, presentationID, slideID, commentID, actorID string) error {
	var resolved *model.SlideComment
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		resolved = nil
		slide, err := findSlide(p, slideID)
		if err != nil {
			return err
		}
		c := slide.Comment(commentID)
		if c == nil {
			return repository.ErrNoChange
		}
		if c.AuthorID != actorID {
			if err := requireRole(p, actorID, model.RoleEditor); err != nil {
				return err
			}
		}
		if c.Resolved {
			return repository.ErrNoChange
		}
		c.Resolved = true
		p.LastUpdatedAt = s.now()
		cp := *c
		resolved = &cp
		return nil
	})
	if err != nil {
		return err
	}
	if resolved == nil {
		return nil
	}

	s.logActivity(ctx, p, actorID, activity.CommentResolved, commentID, map[string]any{"slide_id": slideID})
	s.publish(presentationID, actorID, socket.CommentUpdateType, commentEvent{SlideID: slideID, Comment: resolved})
	return nil
}

// ListComments is open to anyone who can view the deck, including visitors of
// a public deck who supply its password.
func (s *PresentationService) ListComments(ctx context.Context, presentationID, slideID, userID, password string) ([]model.SlideComment, error) {
	p, _, err := s.Authorize(ctx, presentationID, userID, model.RoleViewer, password)
	if err != nil {
		return nil, err
	}
	slide, err := findSlide(p, slideID)
	if err != nil {
		return nil, err
	}
	if slide.Comments == nil {
		return []model.SlideComment{}, nil
	}
	return slide.Comments, nil
}
