/*
dto.go - Request and response types for the HTTP API

PURPOSE:
  Decouples the wire contract from the ledger's domain types. Grant and
  redeem responses return the {id, name, balance} triple; the
  leaderboard adds each person's share of the outstanding points,
  computed with decimal arithmetic so the read-side projection never
  accumulates float drift.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hotwire/points-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GrantRequest is the admin grant body. Amount is signed and non-zero.
type GrantRequest struct {
	PersonID int64  `json:"person_id"`
	Amount   int64  `json:"amount"`
	Note     string `json:"note,omitempty"`
}

// RedeemRequest is the admin-processed redeem body.
type RedeemRequest struct {
	PersonID int64 `json:"person_id"`
	ItemID   int64 `json:"item_id"`
}

// SelfRedeemRequest is the self-service redeem body; the person comes
// from the caller's identity.
type SelfRedeemRequest struct {
	ItemID int64 `json:"item_id"`
}

// CreatePersonRequest creates a person with a zero balance.
type CreatePersonRequest struct {
	Name string `json:"name"`
}

// CreateItemRequest creates a catalog item.
type CreateItemRequest struct {
	Name        string `json:"name"`
	Cost        int64  `json:"cost"`
	Description string `json:"description,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PersonSummaryDTO is the grant/redeem (and /me) response shape.
type PersonSummaryDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// LeaderboardEntryDTO is one leaderboard row. Share is the person's
// percentage of all positive balances, one decimal place.
type LeaderboardEntryDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
	Share     string `json:"share"`
	CreatedAt string `json:"created_at"`
}

// ItemDTO is a catalog entry.
type ItemDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Cost        int64  `json:"cost"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// TransactionDTO is one ledger entry in a person's history.
type TransactionDTO struct {
	ID        int64  `json:"id"`
	PersonID  int64  `json:"person_id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	ItemID    *int64 `json:"item_id,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the standard error body. Code is machine-readable so
// clients can distinguish "doesn't exist" from "not enough points" from
// "try again".
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPersonSummary(p *ledger.Person) PersonSummaryDTO {
	return PersonSummaryDTO{ID: int64(p.ID), Name: p.Name, Balance: p.Balance}
}

func toItemDTO(it ledger.Item) ItemDTO {
	return ItemDTO{
		ID:          int64(it.ID),
		Name:        it.Name,
		Cost:        it.Cost,
		Description: it.Description,
		CreatedAt:   it.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:        int64(tx.ID),
		PersonID:  int64(tx.PersonID),
		Amount:    tx.Amount,
		Kind:      string(tx.Kind),
		Note:      tx.Note,
		CreatedAt: tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ItemID != nil {
		id := int64(*tx.ItemID)
		dto.ItemID = &id
	}
	return dto
}

// toLeaderboard computes each person's share of the positive balances.
// People at or below zero get a zero share.
func toLeaderboard(people []ledger.Person) []LeaderboardEntryDTO {
	total := decimal.Zero
	for _, p := range people {
		if p.Balance > 0 {
			total = total.Add(decimal.NewFromInt(p.Balance))
		}
	}

	entries := make([]LeaderboardEntryDTO, len(people))
	hundred := decimal.NewFromInt(100)
	for i, p := range people {
		share := decimal.Zero
		if p.Balance > 0 && total.IsPositive() {
			share = decimal.NewFromInt(p.Balance).Div(total).Mul(hundred).Round(1)
		}
		entries[i] = LeaderboardEntryDTO{
			ID:        int64(p.ID),
			Name:      p.Name,
			Balance:   p.Balance,
			Share:     share.StringFixed(1),
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		}
	}
	return entries
}
