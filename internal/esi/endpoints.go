package esi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

type walletTransaction struct {
	TransactionID int64   `json:"transaction_id"`
	ClientID      int64   `json:"client_id"`
	Date          string  `json:"date"`
	IsBuy         bool    `json:"is_buy"`
	JournalRefID  int64   `json:"journal_ref_id"`
	LocationID    int64   `json:"location_id"`
	Quantity      int64   `json:"quantity"`
	TypeID        int64   `json:"type_id"`
	UnitPrice     float64 `json:"unit_price"`
}

// DecodeTransactions turns a raw wallet-transaction payload into records.
// Exposed so cached cursor bodies can be re-decoded without a fetch.
func DecodeTransactions(body []byte, accountID int64) ([]model.TransactionRecord, error) {
	var wire []walletTransaction
	if err := sonic.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("can't decode wallet transactions: %w", err)
	}

	records := make([]model.TransactionRecord, 0, len(wire))
	for _, w := range wire {
		date, err := time.Parse(time.RFC3339, w.Date)
		if err != nil {
			return nil, fmt.Errorf("can't parse transaction date %q: %w", w.Date, err)
		}
		records = append(records, model.TransactionRecord{
			TransactionID: w.TransactionID,
			AccountID:     accountID,
			IsBuy:         w.IsBuy,
			TypeID:        w.TypeID,
			Quantity:      w.Quantity,
			UnitPrice:     decimal.NewFromFloat(w.UnitPrice),
			LocationID:    w.LocationID,
			ClientID:      w.ClientID,
			JournalRefID:  w.JournalRefID,
			Date:          date,
		})
	}
	return records, nil
}

// WalletTransactions fetches fills for an account. A non-zero beforeID walks
// history backwards (backfill); etag makes the live fetch conditional.
func (c *Client) WalletTransactions(ctx context.Context, account model.Account, beforeID int64, etag string) ([]model.TransactionRecord, Page, error) {
	params := map[string]string{}
	if beforeID > 0 {
		params["from_id"] = strconv.FormatInt(beforeID, 10)
	}

	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v1/characters/%d/wallet/transactions/", account.CharacterID),
		account: &account,
		params:  params,
		etag:    etag,
	})
	if err != nil {
		return nil, page, err
	}

	records, err := DecodeTransactions(page.Body, account.ID)
	return records, page, err
}

type journalEntry struct {
	ID          int64   `json:"id"`
	RefType     string  `json:"ref_type"`
	Amount      float64 `json:"amount"`
	ContextID   *int64  `json:"context_id"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

func decodeJournal(body []byte, accountID int64) ([]model.JournalRecord, error) {
	var wire []journalEntry
	if err := sonic.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("can't decode wallet journal: %w", err)
	}

	entries := make([]model.JournalRecord, 0, len(wire))
	for _, w := range wire {
		date, err := time.Parse(time.RFC3339, w.Date)
		if err != nil {
			return nil, fmt.Errorf("can't parse journal date %q: %w", w.Date, err)
		}
		entries = append(entries, model.JournalRecord{
			RefID:       w.ID,
			AccountID:   accountID,
			RefType:     w.RefType,
			Amount:      decimal.NewFromFloat(w.Amount),
			ContextID:   w.ContextID,
			Description: w.Description,
			Date:        date,
		})
	}
	return entries, nil
}

// WalletJournal fetches one page of the wallet journal.
func (c *Client) WalletJournal(ctx context.Context, account model.Account, pageNum int, etag string) ([]model.JournalRecord, Page, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v6/characters/%d/wallet/journal/", account.CharacterID),
		account: &account,
		params:  map[string]string{"page": strconv.Itoa(pageNum)},
		etag:    etag,
	})
	if err != nil {
		return nil, page, err
	}

	entries, err := decodeJournal(page.Body, account.ID)
	return entries, page, err
}

func (c *Client) WalletBalance(ctx context.Context, account model.Account, etag string) (decimal.Decimal, Page, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v1/characters/%d/wallet/", account.CharacterID),
		account: &account,
		etag:    etag,
	})
	if err != nil {
		return decimal.Zero, page, err
	}

	var balance float64
	if err := sonic.Unmarshal(page.Body, &balance); err != nil {
		return decimal.Zero, page, fmt.Errorf("can't decode wallet balance: %w", err)
	}
	return decimal.NewFromFloat(balance), page, nil
}

type characterOrder struct {
	OrderID      int64   `json:"order_id"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	TypeID       int64   `json:"type_id"`
	Price        float64 `json:"price"`
	VolumeRemain int64   `json:"volume_remain"`
	VolumeTotal  int64   `json:"volume_total"`
	LocationID   int64   `json:"location_id"`
	RegionID     int64   `json:"region_id"`
	Duration     int     `json:"duration"`
	Issued       string  `json:"issued"`
	State        string  `json:"state"`
}

func decodeOrders(body []byte, accountID int64) ([]model.OrderSnapshot, error) {
	var wire []characterOrder
	if err := sonic.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("can't decode orders: %w", err)
	}

	snaps := make([]model.OrderSnapshot, 0, len(wire))
	for _, w := range wire {
		issued, err := time.Parse(time.RFC3339, w.Issued)
		if err != nil {
			return nil, fmt.Errorf("can't parse order issued %q: %w", w.Issued, err)
		}
		snaps = append(snaps, model.OrderSnapshot{
			OrderID:      w.OrderID,
			AccountID:    accountID,
			IsBuyOrder:   w.IsBuyOrder,
			TypeID:       w.TypeID,
			Price:        decimal.NewFromFloat(w.Price),
			VolumeRemain: w.VolumeRemain,
			VolumeTotal:  w.VolumeTotal,
			LocationID:   w.LocationID,
			RegionID:     w.RegionID,
			Duration:     w.Duration,
			Issued:       issued,
		})
	}
	return snaps, nil
}

// MarketOrders fetches the account's currently open orders.
func (c *Client) MarketOrders(ctx context.Context, account model.Account, etag string) ([]model.OrderSnapshot, Page, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v2/characters/%d/orders/", account.CharacterID),
		account: &account,
		etag:    etag,
	})
	if err != nil {
		return nil, page, err
	}

	snaps, err := decodeOrders(page.Body, account.ID)
	return snaps, page, err
}

// OrderHistory fetches recently closed orders, used to classify removals.
func (c *Client) OrderHistory(ctx context.Context, account model.Account, etag string) ([]model.HistoricOrder, Page, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v1/characters/%d/orders/history/", account.CharacterID),
		account: &account,
		etag:    etag,
	})
	if err != nil {
		return nil, page, err
	}

	var wire []characterOrder
	if err := sonic.Unmarshal(page.Body, &wire); err != nil {
		return nil, page, fmt.Errorf("can't decode order history: %w", err)
	}

	orders := make([]model.HistoricOrder, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, model.HistoricOrder{
			OrderID:      w.OrderID,
			AccountID:    account.ID,
			State:        w.State,
			VolumeRemain: w.VolumeRemain,
		})
	}
	return orders, page, nil
}

type contract struct {
	ContractID int64   `json:"contract_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	Price      float64 `json:"price"`
	Reward     float64 `json:"reward"`
	IssuerID   int64   `json:"issuer_id"`
	DateIssued string  `json:"date_issued"`
}

func (c *Client) Contracts(ctx context.Context, account model.Account, etag string) ([]model.Contract, Page, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v1/characters/%d/contracts/", account.CharacterID),
		account: &account,
		etag:    etag,
	})
	if err != nil {
		return nil, page, err
	}

	var wire []contract
	if err := sonic.Unmarshal(page.Body, &wire); err != nil {
		return nil, page, fmt.Errorf("can't decode contracts: %w", err)
	}

	contracts := make([]model.Contract, 0, len(wire))
	for _, w := range wire {
		issued, err := time.Parse(time.RFC3339, w.DateIssued)
		if err != nil {
			return nil, page, fmt.Errorf("can't parse contract issued %q: %w", w.DateIssued, err)
		}
		contracts = append(contracts, model.Contract{
			ContractID: w.ContractID,
			AccountID:  account.ID,
			Type:       w.Type,
			Status:     w.Status,
			Price:      decimal.NewFromFloat(w.Price),
			Reward:     decimal.NewFromFloat(w.Reward),
			IssuerID:   w.IssuerID,
			DateIssued: issued,
		})
	}
	return contracts, page, nil
}

// RegionOrder is a public market order in a region, competitor data for the
// undercut check.
type RegionOrder struct {
	OrderID    int64           `json:"order_id"`
	IsBuyOrder bool            `json:"is_buy_order"`
	TypeID     int64           `json:"type_id"`
	LocationID int64           `json:"location_id"`
	Price      decimal.Decimal `json:"price"`
}

type regionOrder struct {
	OrderID    int64   `json:"order_id"`
	IsBuyOrder bool    `json:"is_buy_order"`
	TypeID     int64   `json:"type_id"`
	LocationID int64   `json:"location_id"`
	Price      float64 `json:"price"`
}

func decodeRegionOrders(body []byte) ([]RegionOrder, error) {
	var wire []regionOrder
	if err := sonic.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("can't decode region orders: %w", err)
	}
	orders := make([]RegionOrder, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, RegionOrder{
			OrderID:    w.OrderID,
			IsBuyOrder: w.IsBuyOrder,
			TypeID:     w.TypeID,
			LocationID: w.LocationID,
			Price:      decimal.NewFromFloat(w.Price),
		})
	}
	return orders, nil
}

// RegionOrders fetches all public orders for one item in a region, walking
// every page.
func (c *Client) RegionOrders(ctx context.Context, regionID, typeID int64) ([]RegionOrder, error) {
	var all []RegionOrder
	for pageNum := 1; ; pageNum++ {
		page, err := c.get(ctx, request{
			path: fmt.Sprintf("/v1/markets/%d/orders/", regionID),
			params: map[string]string{
				"order_type": "all",
				"type_id":    strconv.FormatInt(typeID, 10),
				"page":       strconv.Itoa(pageNum),
			},
		})
		if err != nil {
			return nil, err
		}
		orders, err := decodeRegionOrders(page.Body)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
		if pageNum >= page.Pages {
			return all, nil
		}
	}
}

// StructureOrders fetches the order book of a player-owned structure.
func (c *Client) StructureOrders(ctx context.Context, account model.Account, structureID int64) ([]RegionOrder, error) {
	var all []RegionOrder
	for pageNum := 1; ; pageNum++ {
		page, err := c.get(ctx, request{
			path:    fmt.Sprintf("/v1/markets/structures/%d/", structureID),
			account: &account,
			params:  map[string]string{"page": strconv.Itoa(pageNum)},
		})
		if err != nil {
			return nil, err
		}
		orders, err := decodeRegionOrders(page.Body)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
		if pageNum >= page.Pages {
			return all, nil
		}
	}
}
