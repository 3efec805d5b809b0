package service

import (
	"errors"
	"fmt"

	"collabdeck/internal/presentation/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrTransactionExhausted = repository.ErrTransactionExhausted
	ErrPermissionDenied     = errors.New("permission denied")
	ErrValidation           = errors.New("validation failed")
	// ErrElementLocked rejects edits to an element another user holds a live
	// lock on. A failed AcquireLock is not an error; it returns false.
	ErrElementLocked = errors.New("element is locked by another user")
)

// storeErr maps the store's missing-document error onto ErrNotFound so
// callers see one sentinel for every missing thing.
func storeErr(err error, presentationID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: presentation %s", ErrNotFound, presentationID)
	}
	return err
}
