/*
store.go - Persistence interfaces consumed by the ledger

PURPOSE:
  Defines the narrow surface the Service needs from the database. The
  concrete implementation lives in store/sqlite; the same contract would
  hold for PostgreSQL.

ATOMICITY CONTRACT:
  Service code always performs its writes inside WithTx. The two write
  primitives report rows-affected so the Service can distinguish
  "person missing" (unconditional delta touched nothing) from
  "insufficient funds" (conditional deduction touched nothing).

CONDITIONAL WRITES:
  DeductBalanceIfSufficient is the race-free form of check-then-mutate:
  the WHERE clause evaluates balance >= cost under the storage layer's
  isolation, so two concurrent redemptions can never both pass a check
  against the same stale balance.
*/
package ledger

import "context"

// Store is the read/write surface available inside an atomic unit.
// Implementations return (nil, nil) from the getters when the record
// does not exist; the Service owns the not-found classification.
type Store interface {
	// GetPerson returns the person or (nil, nil) when absent.
	GetPerson(ctx context.Context, id PersonID) (*Person, error)

	// GetItem returns the catalog item or (nil, nil) when absent.
	GetItem(ctx context.Context, id ItemID) (*Item, error)

	// AddBalance applies an unconditional delta to the person's balance.
	// Returns false when no row matched (person does not exist).
	AddBalance(ctx context.Context, id PersonID, delta int64) (bool, error)

	// DeductBalanceIfSufficient subtracts cost only when balance >= cost.
	// Returns false when the row was not updated, either because the
	// person is missing or the balance is too low.
	DeductBalanceIfSufficient(ctx context.Context, id PersonID, cost int64) (bool, error)

	// AppendTransaction appends one ledger row. Append-only: there is no
	// update or delete for transactions. Ever.
	AppendTransaction(ctx context.Context, tx Transaction) (TransactionID, error)
}

// TxStore runs a function inside a database transaction. If fn returns
// an error the transaction is rolled back and nothing is visible;
// otherwise it is committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// IdentityStore is the lookup/creation surface used by the identity
// resolver (see identity.go). Kept separate from Store: resolution is
// not part of the ledger's atomic unit.
type IdentityStore interface {
	// GetPersonByExternalID returns the linked person or (nil, nil).
	GetPersonByExternalID(ctx context.Context, externalID string) (*Person, error)

	// CreatePerson inserts a person with balance 0. externalID may be
	// empty (admin-created person). Uniqueness violations surface as
	// ErrNameTaken or ErrIdentityTaken.
	CreatePerson(ctx context.Context, name, externalID string) (*Person, error)
}
