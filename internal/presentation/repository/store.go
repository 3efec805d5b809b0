package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"collabdeck/internal/presentation/model"
	"collabdeck/pkg/logger"
)

var (
	// ErrNotFound means the presentation does not exist or was soft-deleted.
	ErrNotFound = errors.New("repository: presentation not found")
	// ErrVersionConflict means another writer saved the document after it was loaded.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrTransactionExhausted is returned when every retry lost the race.
	ErrTransactionExhausted = errors.New("repository: transaction retries exhausted")
	// ErrNoChange lets a transaction body finish without writing.
	ErrNoChange = errors.New("repository: no change")
)

// MaxTransactionAttempts bounds RunTransaction. Every conflict means some other
// writer committed, so up to this many concurrent writers on one document all
// complete without exhausting.
const MaxTransactionAttempts = 10

// Store persists whole presentation documents with compare-and-swap writes.
type Store interface {
	Create(ctx context.Context, p *model.Presentation) error
	// Load returns a private copy of the document carrying its current Version.
	Load(ctx context.Context, id string) (*model.Presentation, error)
	// Save writes p if the stored version still equals p.Version and then
	// advances p.Version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, p *model.Presentation) error
	ListForUser(ctx context.Context, userID string) ([]model.Summary, error)
	SoftDelete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// TxFunc mutates the freshly loaded document in place.
type TxFunc func(p *model.Presentation) error

// RunTransaction performs an optimistic read-modify-write of one presentation.
// The body is re-run against a fresh read after every version conflict, so it
// must derive all decisions from p and not from state captured earlier.
func RunTransaction(ctx context.Context, store Store, id string, fn TxFunc) (*model.Presentation, error) {
	var lastErr error
	for attempt := 0; attempt < MaxTransactionAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		p, err := store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			if errors.Is(err, ErrNoChange) {
				return p, nil
			}
			return nil, err
		}

		err = store.Save(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		logger.Sugar.Debugf("Transaction on presentation %s lost a race (attempt %d)", id, attempt+1)
	}
	logger.Sugar.Warnf("Transaction on presentation %s gave up after %d attempts", id, MaxTransactionAttempts)
	return nil, fmt.Errorf("%w: %v", ErrTransactionExhausted, lastErr)
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*time.Millisecond + time.Duration(rand.IntN(2000))*time.Microsecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
