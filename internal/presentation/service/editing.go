package service

import (
	"context"
	"fmt"

	"collabdeck/internal/activity"
	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
	"collabdeck/socket"
)

type elementEvent struct {
	SlideID   string              `json:"slide_id"`
	ElementID string              `json:"element_id"`
	Element   *model.SlideElement `json:"element,omitempty"`
}

// checkUnlocked fails when someone other than userID holds a live lease on el.
func (s *PresentationService) checkUnlocked(el *model.SlideElement, userID string) error {
	if holder := el.LockHolder(s.now(), s.lease()); holder != "" && holder != userID {
		return fmt.Errorf("%w: element %s is being edited by %s", ErrElementLocked, el.ID, holder)
	}
	return nil
}

func (s *PresentationService) AddSlide(ctx context.Context, actorID, presentationID string, req model.SlideRequest) (*model.Slide, error) {
	slideID := s.NewID()

	var out model.Slide
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		out = model.Slide{
			ID:           slideID,
			SlideNumber:  p.NextSlideNumber(),
			Elements:     []model.SlideElement{},
			Comments:     []model.SlideComment{},
			Background:   req.Background,
			SpeakerNotes: req.SpeakerNotes,
		}
		p.Slides = append(p.Slides, out)
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, p, actorID, activity.SlideAdded, slideID, map[string]any{"slide_number": out.SlideNumber})
	s.publish(presentationID, actorID, socket.SlideAddedType, out)
	return &out, nil
}

// DeleteSlide removes a slide. Remaining slides keep their numbers. A slide
// with an element under someone else's live lock cannot be deleted.
func (s *PresentationService) DeleteSlide(ctx context.Context, actorID, presentationID, slideID string) error {
	var number int
	p, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		idx := -1
		for i := range p.Slides {
			if p.Slides[i].ID == slideID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: slide %s", ErrNotFound, slideID)
		}
		for i := range p.Slides[idx].Elements {
			if err := s.checkUnlocked(&p.Slides[idx].Elements[i], actorID); err != nil {
				return err
			}
		}
		number = p.Slides[idx].SlideNumber
		p.Slides = append(p.Slides[:idx], p.Slides[idx+1:]...)
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.logActivity(ctx, p, actorID, activity.SlideDeleted, slideID, map[string]any{"slide_number": number})
	s.publish(presentationID, actorID, socket.SlideDeletedType, map[string]string{"slide_id": slideID})
	return nil
}

func (s *PresentationService) UpdateSpeakerNotes(ctx context.Context, actorID, presentationID, slideID, notes string) error {
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		slide, err := findSlide(p, slideID)
		if err != nil {
			return err
		}
		if slide.SpeakerNotes == notes {
			return repository.ErrNoChange
		}
		slide.SpeakerNotes = notes
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(presentationID, actorID, socket.SlideUpdatedType, map[string]string{"slide_id": slideID, "speaker_notes": notes})
	return nil
}

func (s *PresentationService) AddElement(ctx context.Context, actorID, presentationID, slideID string, req model.ElementRequest) (*model.SlideElement, error) {
	if err := req.Content.Validate(req.Type); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	elementID := s.NewID()

	var out model.SlideElement
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		slide, err := findSlide(p, slideID)
		if err != nil {
			return err
		}
		z := slide.NextZIndex()
		if req.ZIndex != nil {
			z = *req.ZIndex
		}
		out = model.SlideElement{
			ID:       elementID,
			Type:     req.Type,
			Content:  req.Content,
			Position: req.Position,
			Size:     req.Size,
			Style:    req.Style,
			ZIndex:   z,
		}
		slide.Elements = append(slide.Elements, out)
		p.LastUpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(presentationID, actorID, socket.ElementAddedType, elementEvent{SlideID: slideID, ElementID: elementID, Element: &out})
	return &out, nil
}

// UpdateElement applies patch unless another user holds a live lock on the
// element. Editing does not take the lock; clients acquire it first.
func (s *PresentationService) UpdateElement(ctx context.Context, actorID, presentationID, slideID, elementID string, patch model.ElementPatch) (*model.SlideElement, error) {
	var out model.SlideElement
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		el, err := findElement(p, slideID, elementID)
		if err != nil {
			return err
		}
		if err := s.checkUnlocked(el, actorID); err != nil {
			return err
		}
		if patch.Content != nil {
			if err := patch.Content.Validate(el.Type); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			el.Content = *patch.Content
		}
		if patch.Position != nil {
			el.Position = *patch.Position
		}
		if patch.Size != nil {
			el.Size = *patch.Size
		}
		if patch.Style != nil {
			el.Style = patch.Style
		}
		if patch.ZIndex != nil {
			el.ZIndex = *patch.ZIndex
		}
		p.LastUpdatedAt = s.now()
		out = *el
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(presentationID, actorID, socket.ElementUpdatedType, elementEvent{SlideID: slideID, ElementID: elementID, Element: &out})
	return &out, nil
}

func (s *PresentationService) DeleteElement(ctx context.Context, actorID, presentationID, slideID, elementID string) error {
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		if err := requireRole(p, actorID, model.RoleEditor); err != nil {
			return err
		}
		slide, err := findSlide(p, slideID)
		if err != nil {
			return err
		}
		for i := range slide.Elements {
			if slide.Elements[i].ID != elementID {
				continue
			}
			if err := s.checkUnlocked(&slide.Elements[i], actorID); err != nil {
				return err
			}
			slide.Elements = append(slide.Elements[:i], slide.Elements[i+1:]...)
			p.LastUpdatedAt = s.now()
			return nil
		}
		return fmt.Errorf("%w: element %s", ErrNotFound, elementID)
	})
	if err != nil {
		return err
	}

	s.publish(presentationID, actorID, socket.ElementDeletedType, elementEvent{SlideID: slideID, ElementID: elementID})
	return nil
}
