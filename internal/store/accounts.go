package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

const (
	_queryActiveAccounts = `SELECT id, character_id, character_name, refresh_token, chat_id, status, deletion_scheduled_at, created_at
		FROM accounts WHERE status = 'active'`
	_queryAccountByID = `SELECT id, character_id, character_name, refresh_token, chat_id, status, deletion_scheduled_at, created_at
		FROM accounts WHERE id = $1`
	_queryAccountByCharacter = `SELECT id, character_id, character_name, refresh_token, chat_id, status, deletion_scheduled_at, created_at
		FROM accounts WHERE character_id = $1 AND status <> 'deleted' ORDER BY created_at DESC LIMIT 1`

	_insertAccount = `INSERT INTO accounts (character_id, character_name, refresh_token, chat_id)
		VALUES ($1, $2, $3, $4) RETURNING id`

	_scheduleDeletion = `UPDATE accounts
		SET status = 'pending_delete', deletion_scheduled_at = $2 WHERE id = $1`
	_cancelDeletion = `UPDATE accounts
		SET status = 'active', deletion_scheduled_at = NULL WHERE id = $1 AND status = 'pending_delete'`

	_queryExpiredAccounts = `SELECT id FROM accounts
		WHERE status = 'pending_delete' AND deletion_scheduled_at <= $1`
	_deleteAccount = `DELETE FROM accounts WHERE id = $1`

	_updateWalletBalance = `UPDATE accounts SET wallet_balance = $2 WHERE id = $1`
	_queryWalletBalance  = `SELECT wallet_balance FROM accounts WHERE id = $1`
	_updateRefreshToken  = `UPDATE accounts SET refresh_token = $2 WHERE id = $1`
)

func (s *Store) ActiveAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.q.SelectContext(ctx, &accounts, _queryActiveAccounts); err != nil {
		return nil, fmt.Errorf("can't query active accounts: %w", err)
	}
	return accounts, nil
}

func (s *Store) Account(ctx context.Context, id int64) (model.Account, error) {
	var account model.Account
	if err := s.q.GetContext(ctx, &account, _queryAccountByID, id); err != nil {
		return model.Account{}, fmt.Errorf("can't query account %d: %w", id, err)
	}
	return account, nil
}

// AccountByCharacter returns the newest non-deleted row for a character, so
// a re-add within the deletion grace window finds the suspended account.
func (s *Store) AccountByCharacter(ctx context.Context, characterID int64) (model.Account, bool, error) {
	var account model.Account
	if err := s.q.GetContext(ctx, &account, _queryAccountByCharacter, characterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, false, nil
		}
		return model.Account{}, false, fmt.Errorf("can't query account by character %d: %w", characterID, err)
	}
	return account, true, nil
}

func (s *Store) InsertAccount(ctx context.Context, a model.Account) (int64, error) {
	var id int64
	if err := s.q.GetContext(ctx, &id, _insertAccount, a.CharacterID, a.CharacterName, a.RefreshToken, a.ChatID); err != nil {
		return 0, fmt.Errorf("can't insert account: %w", err)
	}
	return id, nil
}

func (s *Store) ScheduleDeletion(ctx context.Context, accountID int64, deadline time.Time) error {
	if _, err := s.q.ExecContext(ctx, _scheduleDeletion, accountID, deadline); err != nil {
		return fmt.Errorf("can't schedule deletion for account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) CancelDeletion(ctx context.Context, accountID int64) error {
	if _, err := s.q.ExecContext(ctx, _cancelDeletion, accountID); err != nil {
		return fmt.Errorf("can't cancel deletion for account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) ExpiredAccounts(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	if err := s.q.SelectContext(ctx, &ids, _queryExpiredAccounts, now); err != nil {
		return nil, fmt.Errorf("can't query expired accounts: %w", err)
	}
	return ids, nil
}

// DeleteAccount purges an account; dependent rows go with it via ON DELETE CASCADE.
func (s *Store) DeleteAccount(ctx context.Context, accountID int64) error {
	if _, err := s.q.ExecContext(ctx, _deleteAccount, accountID); err != nil {
		return fmt.Errorf("can't delete account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) UpdateWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if _, err := s.q.ExecContext(ctx, _updateWalletBalance, accountID, balance); err != nil {
		return fmt.Errorf("can't update wallet balance for account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) WalletBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := s.q.GetContext(ctx, &balance, _queryWalletBalance, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("can't query wallet balance for account %d: %w", accountID, err)
	}
	return balance, nil
}

func (s *Store) UpdateRefreshToken(ctx context.Context, accountID int64, token string) error {
	if _, err := s.q.ExecContext(ctx, _updateRefreshToken, accountID, token); err != nil {
		return fmt.Errorf("can't update refresh token for account %d: %w", accountID, err)
	}
	return nil
}
