package model

import "time"

type AccountStatus string

const (
	AccountActive        AccountStatus = "active"
	AccountPendingDelete AccountStatus = "pending_delete"
)

// Account is one monitored EVE character. CharacterID is the external
// identity; at most one active row exists per character.
type Account struct {
	ID                  int64         `db:"id"`
	CharacterID         int64         `db:"character_id"`
	CharacterName       string        `db:"character_name"`
	RefreshToken        string        `db:"refresh_token"`
	ChatID              int64         `db:"chat_id"`
	Status              AccountStatus `db:"status"`
	DeletionScheduledAt *time.Time    `db:"deletion_scheduled_at"`
	CreatedAt           time.Time     `db:"created_at"`
}

func (a Account) PendingDelete() bool {
	return a.Status == AccountPendingDelete && a.DeletionScheduledAt != nil
}
