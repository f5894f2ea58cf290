/*
service.go - Grant and Redeem, the only balance mutators

PURPOSE:
  The Service is the core of the system. Each operation runs as one
  database transaction covering exactly two writes: the balance delta
  and the appended ledger row. Both commit together or neither does.

INVARIANTS:
  1. balance == sum(transactions.amount) for every person, always
  2. Redeem never leaves a balance negative
  3. Exactly one transaction row per successful call, zero on failure

CONCURRENCY:
  Redeem's funds check is a conditional UPDATE (balance >= cost), so two
  concurrent redemptions against the same shrinking balance serialize in
  the storage layer: at most one can win the last affordable redemption.
  Grant applies an unconditional delta and has no such race.

  The Service holds no durable in-memory state. Every call blocks until
  its transaction commits or aborts; there is no internal retry (grants
  are not idempotent, so a retry re-applies the delta).
*/
package ledger

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// METRICS
// =============================================================================

var (
	grantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_grants_total",
		Help: "Committed grant operations",
	})

	redeemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_redeems_total",
		Help: "Committed redeem operations",
	})

	redeemsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_redeems_rejected_total",
		Help: "Redeem operations rejected for insufficient points",
	})
)

// =============================================================================
// SERVICE
// =============================================================================

// Service exposes the two balance-mutating operations. All durable state
// lives behind the TxStore.
type Service struct {
	store  TxStore
	logger *zap.Logger
}

func NewService(store TxStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Grant applies a signed, non-zero delta to a person's balance and
// appends the matching grant transaction. There is no bound on the
// amount in either direction: negative grants are the admin correction
// path and may take a balance below zero. Returns the person with their
// updated balance.
func (s *Service) Grant(ctx context.Context, actor Actor, personID PersonID, amount int64, note string) (*Person, error) {
	if !actor.CanGrant() {
		return nil, ErrNotAuthorized
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var updated *Person
	err := s.store.WithTx(ctx, func(st Store) error {
		ok, err := st.AddBalance(ctx, personID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPersonNotFound
		}

		if _, err := st.AppendTransaction(ctx, Transaction{
			PersonID: personID,
			Amount:   amount,
			Kind:     KindGrant,
			Note:     note,
		}); err != nil {
			return err
		}

		updated, err = st.GetPerson(ctx, personID)
		return err
	})
	if err != nil {
		return nil, err
	}

	grantsTotal.Inc()
	s.logger.Info("grant committed",
		zap.Int64("person_id", int64(personID)),
		zap.Int64("amount", amount),
		zap.Int64("balance", updated.Balance))
	return updated, nil
}

// Redeem exchanges points for a catalog item. The funds check and the
// two writes happen inside one transaction; on InsufficientPoints the
// whole unit aborts and no row is written. The appended transaction
// snapshots the item name as its note, independent of later catalog
// edits. Returns the person with their updated balance.
func (s *Service) Redeem(ctx context.Context, actor Actor, personID PersonID, itemID ItemID) (*Person, error) {
	if !actor.CanRedeemFor(personID) {
		return nil, ErrNotAuthorized
	}

	var updated *Person
	err := s.store.WithTx(ctx, func(st Store) error {
		item, err := st.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}

		person, err := st.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if person == nil {
			return ErrPersonNotFound
		}

		ok, err := st.DeductBalanceIfSufficient(ctx, personID, item.Cost)
		if err != nil {
			return err
		}
		if !ok {
			// Person exists (read above, same transaction), so the
			// conditional update can only have failed the funds check.
			return &InsufficientPointsError{
				PersonID: personID,
				ItemID:   itemID,
				Balance:  person.Balance,
				Cost:     item.Cost,
			}
		}

		ref := item.ID
		if _, err := st.AppendTransaction(ctx, Transaction{
			PersonID: personID,
			Amount:   -item.Cost,
			Kind:     KindRedeem,
			ItemID:   &ref,
			Note:     item.Name,
		}); err != nil {
			return err
		}

		updated, err = st.GetPerson(ctx, personID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			redeemsRejectedTotal.Inc()
		}
		return nil, err
	}

	redeemsTotal.Inc()
	s.logger.Info("redeem committed",
		zap.Int64("person_id", int64(personID)),
		zap.Int64("item_id", int64(itemID)),
		zap.Int64("balance", updated.Balance))
	return updated, nil
}
