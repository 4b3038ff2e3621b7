package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
)

// Store is the persistence the lifecycle machines run on.
type Store interface {
	BackfillState(ctx context.Context, accountID int64) (model.BackfillState, error)
	SaveBackfillState(ctx context.Context, state model.BackfillState) error

	AccountByCharacter(ctx context.Context, characterID int64) (model.Account, bool, error)
	InsertAccount(ctx context.Context, a model.Account) (int64, error)
	ScheduleDeletion(ctx context.Context, accountID int64, deadline time.Time) error
	CancelDeletion(ctx context.Context, accountID int64) error
	ExpiredAccounts(ctx context.Context, now time.Time) ([]int64, error)
	DeleteAccount(ctx context.Context, accountID int64) error
}

// Manager drives the two per-account state machines: backfill with its
// notification grace period, and soft deletion with its reaper.
type Manager struct {
	store Store

	grace         time.Duration
	deletionGrace time.Duration

	logger logger.Logger
}

func NewManager(store Store, grace, deletionGrace time.Duration, logger logger.Logger) *Manager {
	return &Manager{
		store:         store,
		grace:         grace,
		deletionGrace: deletionGrace,
		logger:        logger,
	}
}

// advance moves the backfill machine one step forward; any other jump is a bug.
func (m *Manager) advance(ctx context.Context, state model.BackfillState, next model.BackfillPhase) error {
	if !state.Phase.CanTransitionTo(next) {
		return fmt.Errorf("illegal backfill transition %s -> %s for account %d", state.Phase, next, state.AccountID)
	}
	state.Phase = next
	return m.store.SaveBackfillState(ctx, state)
}

// MarkFastSynced records that the most recent history page landed and the
// background walk can begin at beforeID.
func (m *Manager) MarkFastSynced(ctx context.Context, accountID, beforeID int64) error {
	state, err := m.store.BackfillState(ctx, accountID)
	if err != nil {
		return err
	}
	state.BeforeID = &beforeID
	return m.advance(ctx, state, model.BackfillFastSynced)
}

// MarkBackfilling flags the background walk as running.
func (m *Manager) MarkBackfilling(ctx context.Context, accountID int64) error {
	state, err := m.store.BackfillState(ctx, accountID)
	if err != nil {
		return err
	}
	return m.advance(ctx, state, model.BackfillBackfilling)
}

// AdvanceBackfillCursor persists the next older page boundary. The cursor
// only ever moves toward older ids; a stuck cursor aborts the walk instead
// of looping.
func (m *Manager) AdvanceBackfillCursor(ctx context.Context, accountID, oldestID int64) error {
	state, err := m.store.BackfillState(ctx, accountID)
	if err != nil {
		return err
	}
	if state.BeforeID != nil && oldestID >= *state.BeforeID {
		m.logger.Errorf("backfill cursor for account %d is stuck at %d, finishing early", accountID, oldestID)
		return m.MarkComplete(ctx, accountID, time.Now().UTC())
	}
	state.BeforeID = &oldestID
	return m.store.SaveBackfillState(ctx, state)
}

// MarkComplete ends the backfill and starts the notification grace period.
func (m *Manager) MarkComplete(ctx context.Context, accountID int64, now time.Time) error {
	state, err := m.store.BackfillState(ctx, accountID)
	if err != nil {
		return err
	}
	state.BeforeID = nil
	state.CompletedAt = &now
	return m.advance(ctx, state, model.BackfillComplete)
}

// Gate is the notification decision for one account: whether anything may
// go out at all, and the earliest event timestamp that may be announced.
// An event dated inside the post-backfill grace window stays suppressed
// even when it is only fetched after the window has ended.
type Gate struct {
	Open      bool
	NotBefore time.Time
}

// Allows reports whether an event with the given timestamp may be sent.
func (g Gate) Allows(ts time.Time) bool {
	return g.Open && !ts.Before(g.NotBefore)
}

// NotificationGate gates every user-facing notification for an account.
// Everything is still reconciled while suppressed; only the outbound message
// is held back.
func (m *Manager) NotificationGate(ctx context.Context, account model.Account) (Gate, error) {
	if account.PendingDelete() {
		return Gate{}, nil
	}

	state, err := m.store.BackfillState(ctx, account.ID)
	if err != nil {
		return Gate{}, err
	}
	if state.Phase != model.BackfillComplete {
		return Gate{}, nil
	}

	gate := Gate{Open: true}
	if state.CompletedAt != nil {
		gate.NotBefore = state.CompletedAt.Add(m.grace)
	}
	return gate, nil
}

// NotificationsAllowed reports whether an event observed now may be sent.
func (m *Manager) NotificationsAllowed(ctx context.Context, account model.Account, now time.Time) (bool, error) {
	gate, err := m.NotificationGate(ctx, account)
	if err != nil {
		return false, err
	}
	return gate.Allows(now), nil
}

// AddOrRestore registers a character. A re-add inside the deletion grace
// window simply reactivates the suspended account with all of its history,
// lots and cursors intact.
func (m *Manager) AddOrRestore(ctx context.Context, account model.Account, now time.Time) (int64, bool, error) {
	existing, found, err := m.store.AccountByCharacter(ctx, account.CharacterID)
	if err != nil {
		return 0, false, err
	}

	if found && existing.PendingDelete() && now.Before(*existing.DeletionScheduledAt) {
		if err := m.store.CancelDeletion(ctx, existing.ID); err != nil {
			return 0, false, err
		}
		m.logger.Infof("restored account %d for character %d before deletion deadline", existing.ID, account.CharacterID)
		return existing.ID, true, nil
	}
	if found && existing.Status == model.AccountActive {
		return existing.ID, true, nil
	}

	id, err := m.store.InsertAccount(ctx, account)
	if err != nil {
		return 0, false, err
	}
	if err := m.store.SaveBackfillState(ctx, model.BackfillState{AccountID: id, Phase: model.BackfillNew}); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// RequestRemoval moves an account to pending-delete. Polling and
// notifications stop immediately; rows survive until the deadline.
func (m *Manager) RequestRemoval(ctx context.Context, accountID int64, now time.Time) (time.Time, error) {
	deadline := now.Add(m.deletionGrace)
	if err := m.store.ScheduleDeletion(ctx, accountID, deadline); err != nil {
		return time.Time{}, err
	}
	return deadline, nil
}

// Reap purges every account whose deletion deadline has passed.
func (m *Manager) Reap(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.store.ExpiredAccounts(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := m.store.DeleteAccount(ctx, id); err != nil {
			return 0, err
		}
		m.logger.Infof("purged account %d after deletion grace expired", id)
	}
	return len(ids), nil
}
