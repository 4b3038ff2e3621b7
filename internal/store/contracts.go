package store

import (
	"context"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/lib/pq"
)

const (
	_insertContract = `INSERT INTO contracts (
			contract_id, account_id, type, status, price, reward, issuer_id, date_issued
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (contract_id, account_id) DO UPDATE SET status = EXCLUDED.status`

	_queryExistingContractIDs = `SELECT contract_id FROM contracts
		WHERE account_id = $1 AND contract_id = ANY($2)`

	_deleteStaleContracts = `DELETE FROM contracts WHERE account_id = $1 AND NOT (contract_id = ANY($2))`
	_deleteAllContracts   = `DELETE FROM contracts WHERE account_id = $1`
)

// UpsertContracts refreshes the contract cache and reports which contract
// ids were seen for the first time.
func (s *Store) UpsertContracts(ctx context.Context, accountID int64, contracts []model.Contract) ([]model.Contract, error) {
	if len(contracts) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.ContractID)
	}

	var existing []int64
	if err := s.q.SelectContext(ctx, &existing, _queryExistingContractIDs, accountID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("can't query existing contract ids: %w", err)
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	var fresh []model.Contract
	for _, c := range contracts {
		if _, err := s.q.ExecContext(ctx, _insertContract,
			c.ContractID, accountID, c.Type, c.Status, c.Price, c.Reward, c.IssuerID, c.DateIssued,
		); err != nil {
			return nil, fmt.Errorf("can't upsert contract %d: %w", c.ContractID, err)
		}
		if _, ok := seen[c.ContractID]; !ok {
			fresh = append(fresh, c)
		}
	}

	return fresh, nil
}

func (s *Store) RemoveStaleContracts(ctx context.Context, accountID int64, currentIDs []int64) error {
	if len(currentIDs) == 0 {
		if _, err := s.q.ExecContext(ctx, _deleteAllContracts, accountID); err != nil {
			return fmt.Errorf("can't clear contracts: %w", err)
		}
		return nil
	}
	if _, err := s.q.ExecContext(ctx, _deleteStaleContracts, accountID, pq.Array(currentIDs)); err != nil {
		return fmt.Errorf("can't remove stale contracts: %w", err)
	}
	return nil
}
