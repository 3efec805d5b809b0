package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"collabdeck/internal/presentation/model"
	"collabdeck/socket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_AcquireReleaseHandOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "a live lock held by someone else is a plain false")

	require.NoError(t, f.svc.ReleaseLock(ctx, d.ID, d.SlideID, d.ElementID, "alice"))

	ok, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	el := f.load(t, d.ID).Slides[0].Element(d.ElementID)
	require.NotNil(t, el.LockedBy)
	assert.Equal(t, "bob", *el.LockedBy)
	assert.Equal(t, []string{socket.LockAcquiredType, socket.LockReleasedType, socket.LockAcquiredType}, lockEvents(f.hub))
}

func lockEvents(h *recordingHub) []string {
	var out []string
	for _, typ := range h.types() {
		switch typ {
		case socket.LockAcquiredType, socket.LockReleasedType, socket.LocksExpiredType:
			out = append(out, typ)
		}
	}
	return out
}

func TestLock_AcquireBumpsLastUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	f.clock.Advance(time.Minute)
	ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	p := f.load(t, d.ID)
	assert.True(t, p.LastUpdatedAt.Equal(f.clock.Now()))
	assert.True(t, p.Slides[0].Element(d.ElementID).LockTimestamp.Equal(f.clock.Now()))
}

func TestLock_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(DefaultLockDuration - time.Millisecond)
	ok, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "lock is still live just before the lease ends")

	f.clock.Advance(2 * time.Millisecond)
	ok, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	assert.True(t, ok, "lock is free just after the lease ends")
}

func TestLock_RenewExtendsLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Second)
	ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(20 * time.Second)
	ok, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_ReleaseByNonHolderIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	before := f.load(t, d.ID)

	require.NoError(t, f.svc.ReleaseLock(ctx, d.ID, d.SlideID, d.ElementID, "bob"))

	after := f.load(t, d.ID)
	assert.Equal(t, before.Version, after.Version, "nothing was written")
	el := after.Slides[0].Element(d.ElementID)
	require.NotNil(t, el.LockedBy)
	assert.Equal(t, "alice", *el.LockedBy)

	// Releasing twice is fine.
	require.NoError(t, f.svc.ReleaseLock(ctx, d.ID, d.SlideID, d.ElementID, "alice"))
	require.NoError(t, f.svc.ReleaseLock(ctx, d.ID, d.SlideID, d.ElementID, "alice"))
	assert.Nil(t, f.load(t, d.ID).Slides[0].Element(d.ElementID).LockedBy)
}

func TestLock_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.AcquireLock(ctx, "missing", d.SlideID, d.ElementID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.AcquireLock(ctx, d.ID, "missing", d.ElementID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.ReleaseLock(ctx, d.ID, d.SlideID, "missing", "alice"), ErrNotFound)
}

func TestLock_ViewersCannotLock(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t)

	_, err := f.svc.AcquireLock(context.Background(), d.ID, d.SlideID, d.ElementID, "carol")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestLock_MutualExclusionUnderContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	const contenders = 8
	editor := model.RoleEditor
	changes := map[string]*model.Role{}
	for i := 0; i < contenders; i++ {
		changes[fmt.Sprintf("user-%d", i)] = &editor
	}
	_, err := f.svc.UpdateCollaborators(ctx, "alice", d.ID, changes)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, user)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, user)
				mu.Unlock()
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	el := f.load(t, d.ID).Slides[0].Element(d.ElementID)
	require.NotNil(t, el.LockedBy)
	assert.Equal(t, winners[0], *el.LockedBy)
}

func TestLock_DifferentElementsBothSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	other, err := f.svc.AddElement(ctx, "alice", d.ID, d.SlideID, model.ElementRequest{Type: model.ElementShape, Content: model.ShapeOf("circle")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, target := range []struct{ element, user string }{{d.ElementID, "alice"}, {other.ID, "bob"}} {
		wg.Add(1)
		go func(i int, element, user string) {
			defer wg.Done()
			ok, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, element, user)
			assert.NoError(t, err)
			results[i] = ok
		}(i, target.element, target.user)
	}
	wg.Wait()

	assert.Equal(t, []bool{true, true}, results, "losing the write race must not look like a held lock")
}

func TestReleaseExpiredLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	other, err := f.svc.AddElement(ctx, "alice", d.ID, d.SlideID, model.ElementRequest{Type: model.ElementShape, Content: model.ShapeOf("rect")})
	require.NoError(t, err)

	_, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "alice")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.AcquireLock(ctx, d.ID, d.SlideID, other.ID, "bob")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Second)
	n, err := f.svc.ReleaseExpiredLocks(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only alice's lease has run out")

	slide := f.load(t, d.ID).Slides[0]
	assert.Nil(t, slide.Element(d.ElementID).LockedBy)
	assert.NotNil(t, slide.Element(other.ID).LockedBy)

	f.clock.Advance(10 * time.Second)
	n, err = f.svc.ReleaseExpiredLocks(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ReleaseExpiredLocks(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.ReleaseExpiredLocks(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPresentation_SweepsExpiredLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.AcquireLock(ctx, d.ID, d.SlideID, d.ElementID, "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	p, role, err := f.svc.GetPresentation(ctx, d.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, role)
	assert.Nil(t, p.Slides[0].Element(d.ElementID).LockedBy)
}
