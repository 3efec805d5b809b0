package service

import (
	"context"
	"time"

	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/repository"
	"collabdeck/socket"
)

type lockEvent struct {
	SlideID   string     `json:"slide_id"`
	ElementID string     `json:"element_id"`
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AcquireLock grants userID a lease on one element. It returns false, without
// an error, when another user holds a live lease. Re-acquiring your own lock
// renews it.
func (s *PresentationService) AcquireLock(ctx context.Context, presentationID, slideID, elementID, userID string) (bool, error) {
	var (
		acquired bool
		lockedAt time.Time
	)
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		acquired = false
		if err := requireRole(p, userID, model.RoleEditor); err != nil {
			return err
		}
		el, err := findElement(p, slideID, elementID)
		if err != nil {
			return err
		}
		now := s.now()
		if holder := el.LockHolder(now, s.lease()); holder != "" && holder != userID {
			return repository.ErrNoChange
		}
		el.Lock(userID, now)
		p.LastUpdatedAt = now
		acquired = true
		lockedAt = now
		return nil
	})
	if err != nil {
		return false, err
	}
	if acquired {
		expires := lockedAt.Add(s.lease())
		s.publish(presentationID, userID, socket.LockAcquiredType, lockEvent{SlideID: slideID, ElementID: elementID, UserID: userID, ExpiresAt: &expires})
	}
	return acquired, nil
}

// ReleaseLock clears the lock only when userID holds it. Anything else,
// including an already unlocked element, is a silent no-op.
func (s *PresentationService) ReleaseLock(ctx context.Context, presentationID, slideID, elementID, userID string) error {
	var released bool
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		released = false
		el, err := findElement(p, slideID, elementID)
		if err != nil {
			return err
		}
		if el.LockedBy == nil || *el.LockedBy != userID {
			return repository.ErrNoChange
		}
		el.Unlock()
		p.LastUpdatedAt = s.now()
		released = true
		return nil
	})
	if err != nil {
		return err
	}
	if released {
		s.publish(presentationID, userID, socket.LockReleasedType, lockEvent{SlideID: slideID, ElementID: elementID, UserID: userID})
	}
	return nil
}

// ReleaseExpiredLocks clears every lease on the presentation that has run out
// and returns how many were cleared. Nothing calls it on a timer.
func (s *PresentationService) ReleaseExpiredLocks(ctx context.Context, presentationID string) (int, error) {
	var cleared []lockEvent
	_, err := s.tx(ctx, presentationID, func(p *model.Presentation) error {
		cleared = cleared[:0]
		now := s.now()
		for i := range p.Slides {
			slide := &p.Slides[i]
			for j := range slide.Elements {
				el := &slide.Elements[j]
				if !el.HasExpiredLock(now, s.lease()) {
					continue
				}
				ev := lockEvent{SlideID: slide.ID, ElementID: el.ID}
				if el.LockedBy != nil {
					ev.UserID = *el.LockedBy
				}
				el.Unlock()
				cleared = append(cleared, ev)
			}
		}
		if len(cleared) == 0 {
			return repository.ErrNoChange
		}
		p.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(cleared) > 0 {
		s.publish(presentationID, "", socket.LocksExpiredType, cleared)
	}
	return len(cleared), nil
}
