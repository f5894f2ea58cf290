/*
Package ledger provides the points ledger: the only component allowed to
mutate a person's balance.

PURPOSE:
  A person's balance and their transaction history must never diverge.
  Every balance change goes through Grant or Redeem, and each of those
  performs exactly two writes as one atomic unit: a balance delta on the
  people table and one appended transaction row. The transaction log is
  the ground truth; the balance column is a cached projection of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Person: a participant with a cached integer balance
  - Item: a redeemable catalog entry with a non-negative cost
  - Transaction: an immutable ledger entry (grant or redeem)
  - Actor: the capability of the caller, decided once at the boundary

DESIGN PRINCIPLES:
  1. Append-only log: transactions are never updated or deleted
  2. Single writer: only the ledger Service touches Person.Balance
  3. Integer currency: points are whole numbers, no fractional precision
  4. Capability over role checks: handlers build an Actor once and pass
     it into every Service call

SEE ALSO:
  - service.go: Grant/Redeem atomic units
  - errors.go: error taxonomy
  - store.go: persistence interfaces
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID int64
type ItemID int64
type TransactionID int64

// =============================================================================
// PERSON - Participant with a cached balance
// =============================================================================

// Person is a participant in the points program.
//
// Balance is a cached sum of the person's transaction amounts. It is
// only ever written inside the same database transaction that appends
// the matching ledger row. Redeem keeps it non-negative; Grant does not
// (negative grants are the correction path).
type Person struct {
	ID      PersonID
	Name    string
	Balance int64

	// ExternalID links the person to an identity-provider account.
	// Empty for people created directly by an admin; populated lazily
	// on first authenticated access (see identity.go).
	ExternalID string

	CreatedAt time.Time
}

// =============================================================================
// ITEM - Redeemable catalog entry
// =============================================================================

// Item is something points can be redeemed for. Items referenced by a
// transaction are treated as immutable; the redeem transaction snapshots
// the item name into its note so later catalog edits cannot rewrite
// history.
type Item struct {
	ID          ItemID
	Name        string
	Cost        int64 // always >= 0
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// TRANSACTION - Atomic change to a person's balance
// =============================================================================

type TransactionKind string

const (
	KindGrant  TransactionKind = "grant"  // admin-issued delta, no funds check, positive or negative
	KindRedeem TransactionKind = "redeem" // catalog redemption, gated by sufficient funds
)

// Transaction is one immutable ledger entry. Amount is positive for
// grants and negative for redeems. ItemID is set only for redeems.
type Transaction struct {
	ID       TransactionID
	PersonID PersonID
	Amount   int64
	Kind     TransactionKind
	ItemID   *ItemID
	Note     string

	CreatedAt time.Time
}

// =============================================================================
// ACTOR - Caller capability
// =============================================================================

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMember    Role = "member"
	RoleAnonymous Role = "anonymous"
)

// Actor is the authenticated caller's capability. It is built once at
// the HTTP boundary and threaded through Service calls, instead of the
// service re-deriving roles per operation.
type Actor struct {
	Role     Role
	PersonID PersonID // set when Role == RoleMember
}

func Admin() Actor             { return Actor{Role: RoleAdmin} }
func Member(id PersonID) Actor { return Actor{Role: RoleMember, PersonID: id} }
func Anonymous() Actor         { return Actor{Role: RoleAnonymous} }

// CanGrant reports whether the actor may issue grants.
func (a Actor) CanGrant() bool { return a.Role == RoleAdmin }

// CanRedeemFor reports whether the actor may redeem against the given
// person's balance: admins for anyone, members only for themselves.
func (a Actor) CanRedeemFor(id PersonID) bool {
	return a.Role == RoleAdmin || (a.Role == RoleMember && a.PersonID == id)
}
