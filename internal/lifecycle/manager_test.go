package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	backfill map[int64]model.BackfillState
	accounts map[int64]model.Account
	nextID   int64
	deleted  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		backfill: make(map[int64]model.BackfillState),
		accounts: make(map[int64]model.Account),
		nextID:   1,
	}
}

func (f *fakeStore) BackfillState(_ context.Context, accountID int64) (model.BackfillState, error) {
	if s, ok := f.backfill[accountID]; ok {
		return s, nil
	}
	return model.BackfillState{AccountID: accountID, Phase: model.BackfillNew}, nil
}

func (f *fakeStore) SaveBackfillState(_ context.Context, state model.BackfillState) error {
	f.backfill[state.AccountID] = state
	return nil
}

func (f *fakeStore) AccountByCharacter(_ context.Context, characterID int64) (model.Account, bool, error) {
	for _, a := range f.accounts {
		if a.CharacterID == characterID {
			return a, true, nil
		}
	}
	return model.Account{}, false, nil
}

func (f *fakeStore) InsertAccount(_ context.Context, a model.Account) (int64, error) {
	a.ID = f.nextID
	a.Status = model.AccountActive
	f.nextID++
	f.accounts[a.ID] = a
	return a.ID, nil
}

func (f *fakeStore) ScheduleDeletion(_ context.Context, accountID int64, deadline time.Time) error {
	a := f.accounts[accountID]
	a.Status = model.AccountPendingDelete
	a.DeletionScheduledAt = &deadline
	f.accounts[accountID] = a
	return nil
}

func (f *fakeStore) CancelDeletion(_ context.Context, accountID int64) error {
	a := f.accounts[accountID]
	a.Status = model.AccountActive
	a.DeletionScheduledAt = nil
	f.accounts[accountID] = a
	return nil
}

func (f *fakeStore) ExpiredAccounts(_ context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for id, a := range f.accounts {
		if a.Status == model.AccountPendingDelete && a.DeletionScheduledAt != nil && !a.DeletionScheduledAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, accountID int64) error {
	delete(f.accounts, accountID)
	delete(f.backfill, accountID)
	f.deleted = append(f.deleted, accountID)
	return nil
}

func newManager(store *fakeStore) *Manager {
	return NewManager(store, time.Hour, time.Hour, logger.Nop{})
}

func TestBackfillPhasesAreOneDirectional(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.MarkFastSynced(ctx, 1, 5000))
	require.NoError(t, m.MarkBackfilling(ctx, 1))
	require.NoError(t, m.MarkComplete(ctx, 1, now))

	// No going back.
	require.Error(t, m.MarkFastSynced(ctx, 1, 4000))
	require.Error(t, m.MarkBackfilling(ctx, 1))
	require.Equal(t, model.BackfillComplete, store.backfill[1].Phase)
}

func TestAdvanceBackfillCursorMovesOlderOnly(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)

	require.NoError(t, m.MarkFastSynced(ctx, 1, 5000))
	require.NoError(t, m.MarkBackfilling(ctx, 1))
	require.NoError(t, m.AdvanceBackfillCursor(ctx, 1, 4000))
	require.Equal(t, int64(4000), *store.backfill[1].BeforeID)

	// A cursor that does not move marks the walk complete instead of looping.
	require.NoError(t, m.AdvanceBackfillCursor(ctx, 1, 4000))
	require.Equal(t, model.BackfillComplete, store.backfill[1].Phase)
}

func TestNotificationsSuppressedUntilGraceEnds(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	account := model.Account{ID: 1, Status: model.AccountActive}
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Still backfilling: suppressed.
	require.NoError(t, m.MarkFastSynced(ctx, 1, 5000))
	allowed, err := m.NotificationsAllowed(ctx, account, completed)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, m.MarkBackfilling(ctx, 1))
	require.NoError(t, m.MarkComplete(ctx, 1, completed))

	// Inside the grace hour: suppressed.
	allowed, err = m.NotificationsAllowed(ctx, account, completed.Add(30*time.Minute))
	require.NoError(t, err)
	require.False(t, allowed)

	// After the grace hour: allowed.
	allowed, err = m.NotificationsAllowed(ctx, account, completed.Add(61*time.Minute))
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestGateSuppressesEventsDatedInsideGrace(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	account := model.Account{ID: 1, Status: model.AccountActive}
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.MarkFastSynced(ctx, 1, 5000))
	require.NoError(t, m.MarkBackfilling(ctx, 1))
	require.NoError(t, m.MarkComplete(ctx, 1, completed))

	gate, err := m.NotificationGate(ctx, account)
	require.NoError(t, err)
	require.True(t, gate.Open)

	// An event timestamped inside the grace hour is held back even when it
	// is only processed after the hour has passed.
	require.False(t, gate.Allows(completed.Add(30*time.Minute)))
	require.True(t, gate.Allows(completed.Add(time.Hour)))
	require.True(t, gate.Allows(completed.Add(2*time.Hour)))
}

func TestGateClosedWhilePendingDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	deadline := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	account := model.Account{ID: 1, Status: model.AccountPendingDelete, DeletionScheduledAt: &deadline}

	gate, err := m.NotificationGate(ctx, account)
	require.NoError(t, err)
	require.False(t, gate.Open)
	require.False(t, gate.Allows(deadline))
}

func TestNotificationsSuppressedWhilePendingDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.MarkFastSynced(ctx, 1, 1))
	require.NoError(t, m.MarkBackfilling(ctx, 1))
	require.NoError(t, m.MarkComplete(ctx, 1, now.Add(-2*time.Hour)))

	deadline := now.Add(time.Hour)
	account := model.Account{ID: 1, Status: model.AccountPendingDelete, DeletionScheduledAt: &deadline}
	allowed, err := m.NotificationsAllowed(ctx, account, now)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestRemovalAndRestoreKeepsState(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	id, restored, err := m.AddOrRestore(ctx, model.Account{CharacterID: 42}, now)
	require.NoError(t, err)
	require.False(t, restored)

	require.NoError(t, m.MarkFastSynced(ctx, id, 9000))
	stateBefore := store.backfill[id]

	_, err = m.RequestRemoval(ctx, id, now)
	require.NoError(t, err)
	require.True(t, store.accounts[id].PendingDelete())

	// Re-add before the deadline: same account, untouched state.
	restoredID, restored, err := m.AddOrRestore(ctx, model.Account{CharacterID: 42}, now.Add(30*time.Minute))
	require.NoError(t, err)
	require.True(t, restored)
	require.Equal(t, id, restoredID)
	require.Equal(t, stateBefore, store.backfill[id])
	require.Equal(t, model.AccountActive, store.accounts[id].Status)
	require.Empty(t, store.deleted)
}

func TestReapPurgesExpiredAccounts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newManager(store)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	id, _, err := m.AddOrRestore(ctx, model.Account{CharacterID: 42}, now)
	require.NoError(t, err)
	_, err = m.RequestRemoval(ctx, id, now)
	require.NoError(t, err)

	// Before the deadline nothing happens.
	n, err := m.Reap(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = m.Reap(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{id}, store.deleted)

	// The id may come back as a fresh account afterwards.
	newID, restored, err := m.AddOrRestore(ctx, model.Account{CharacterID: 42}, now.Add(3*time.Hour))
	require.NoError(t, err)
	require.False(t, restored)
	require.NotEqual(t, id, newID)
}
