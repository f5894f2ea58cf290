package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotwire/points-engine/ledger"
	"github.com/hotwire/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*ledger.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewService(store, nil), store
}

func mustCreatePerson(t *testing.T, store *sqlite.Store, name string) *ledger.Person {
	t.Helper()
	person, err := store.CreatePerson(context.Background(), name, "")
	require.NoError(t, err)
	return person
}

func mustCreateItem(t *testing.T, store *sqlite.Store, name string, cost int64) *ledger.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), name, cost, "")
	require.NoError(t, err)
	return item
}

// requireLedgerConsistent asserts the core invariant: the cached balance
// equals the sum of the person's transaction amounts.
func requireLedgerConsistent(t *testing.T, store *sqlite.Store, id ledger.PersonID) {
	t.Helper()
	ctx := context.Background()

	person, err := store.GetPerson(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, person)

	sum, err := store.SumTransactions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sum, person.Balance, "balance must equal sum of transactions")
}

// =============================================================================
// GRANT TESTS
// =============================================================================

func TestGrant_AppendsRowAndUpdatesBalance(t *testing.T) {
	// GIVEN: A person with zero balance
	// WHEN: An admin grants 50 points
	// THEN: Balance is 50 and exactly one grant row exists

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")

	updated, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 50, "code review")
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.KindGrant, txs[0].Kind)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, "code review", txs[0].Note)
	assert.Nil(t, txs[0].ItemID)

	requireLedgerConsistent(t, store, alice.ID)
}

func TestGrant_NotIdempotent(t *testing.T) {
	// GIVEN: A person
	// WHEN: The same grant is applied twice
	// THEN: Both apply - balance 20, two rows

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 10, "helping out")
	require.NoError(t, err)
	updated, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 10, "helping out")
	require.NoError(t, err)

	assert.Equal(t, int64(20), updated.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestGrant_NegativeCorrection_MayGoBelowZero(t *testing.T) {
	// GIVEN: A person with 10 points
	// WHEN: An admin issues a -30 correction
	// THEN: Balance is -20; the ledger stays consistent

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 10, "")
	require.NoError(t, err)

	updated, err := svc.Grant(ctx, ledger.Admin(), alice.ID, -30, "entered for wrong person")
	require.NoError(t, err)
	assert.Equal(t, int64(-20), updated.Balance)

	requireLedgerConsistent(t, store, alice.ID)
}

func TestGrant_ZeroAmount_Rejected(t *testing.T) {
	// GIVEN: A person
	// WHEN: Granting zero points
	// THEN: ErrInvalidAmount, no row written

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 0, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGrant_UnknownPerson_NothingWritten(t *testing.T) {
	// GIVEN: No person with id 999
	// WHEN: Granting to that id
	// THEN: ErrPersonNotFound and the transaction rolled back cleanly

	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, ledger.Admin(), 999, 50, "")
	assert.ErrorIs(t, err, ledger.ErrPersonNotFound)
	assert.True(t, ledger.IsNotFound(err))

	sum, err := store.SumTransactions(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestGrant_NonAdmin_Rejected(t *testing.T) {
	// GIVEN: A person
	// WHEN: A member or anonymous actor tries to grant
	// THEN: ErrNotAuthorized before any write happens

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")

	_, err := svc.Grant(ctx, ledger.Member(alice.ID), alice.ID, 50, "")
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	_, err = svc.Grant(ctx, ledger.Anonymous(), alice.ID, 50, "")
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// REDEEM TESTS
// =============================================================================

func TestRedeem_DeductsAndSnapshotsItemName(t *testing.T) {
	// GIVEN: A person with 50 points and a 20-point item
	// WHEN: They redeem the item
	// THEN: Balance is 30, the row records -20 with the item name as note

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	sticker := mustCreateItem(t, store, "Sticker pack", 20)

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 50, "")
	require.NoError(t, err)

	updated, err := svc.Redeem(ctx, ledger.Member(alice.ID), alice.ID, sticker.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), updated.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2) // newest first

	redeem := txs[0]
	assert.Equal(t, ledger.KindRedeem, redeem.Kind)
	assert.Equal(t, int64(-20), redeem.Amount)
	assert.Equal(t, "Sticker pack", redeem.Note)
	require.NotNil(t, redeem.ItemID)
	assert.Equal(t, sticker.ID, *redeem.ItemID)

	requireLedgerConsistent(t, store, alice.ID)
}

func TestRedeem_InsufficientPoints_NothingWritten(t *testing.T) {
	// GIVEN: A person with 30 points and a 40-point item
	// WHEN: They try to redeem
	// THEN: InsufficientPointsError carrying balance and cost; balance
	//       untouched and no redeem row appended

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	mug := mustCreateItem(t, store, "Mug", 40)

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 30, "")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, ledger.Member(alice.ID), alice.ID, mug.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	var insufficient *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(30), insufficient.Balance)
	assert.Equal(t, int64(40), insufficient.Cost)

	person, err := store.GetPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), person.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1) // only the grant

	requireLedgerConsistent(t, store, alice.ID)
}

func TestRedeem_ExactBalance_Succeeds(t *testing.T) {
	// GIVEN: Balance exactly equal to the item cost
	// WHEN: Redeeming
	// THEN: Succeeds, leaving a zero balance

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	mug := mustCreateItem(t, store, "Mug", 40)

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 40, "")
	require.NoError(t, err)

	updated, err := svc.Redeem(ctx, ledger.Member(alice.ID), alice.ID, mug.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.Balance)
}

func TestRedeem_FreeItem_WorksAtZeroBalance(t *testing.T) {
	// GIVEN: A zero-cost item and a person with no points
	// WHEN: Redeeming
	// THEN: Succeeds and appends a zero-amount redeem row

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	flyer := mustCreateItem(t, store, "Flyer", 0)

	updated, err := svc.Redeem(ctx, ledger.Member(alice.ID), alice.ID, flyer.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Zero(t, txs[0].Amount)
}

func TestRedeem_UnknownItemOrPerson(t *testing.T) {
	// GIVEN: A person but no item 999, and an item but no person 999
	// WHEN: Redeeming either way
	// THEN: The matching not-found sentinel; nothing written

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	mug := mustCreateItem(t, store, "Mug", 10)

	_, err := svc.Redeem(ctx, ledger.Admin(), alice.ID, 999)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)

	_, err = svc.Redeem(ctx, ledger.Admin(), 999, mug.ID)
	assert.ErrorIs(t, err, ledger.ErrPersonNotFound)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRedeem_MemberCannotSpendForOthers(t *testing.T) {
	// GIVEN: Two people, Bob holding the points
	// WHEN: Alice tries to redeem against Bob's balance
	// THEN: ErrNotAuthorized; an admin can do it

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	bob := mustCreatePerson(t, store, "Bob")
	mug := mustCreateItem(t, store, "Mug", 10)

	_, err := svc.Grant(ctx, ledger.Admin(), bob.ID, 50, "")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, ledger.Member(alice.ID), bob.ID, mug.ID)
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	updated, err := svc.Redeem(ctx, ledger.Admin(), bob.ID, mug.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), updated.Balance)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRedeem_ConcurrentOverdraw_ExactlyOneWins(t *testing.T) {
	// GIVEN: A person with 30 points and a 20-point item
	// WHEN: Two redemptions race for the same balance
	// THEN: Exactly one commits; the other fails with InsufficientPoints.
	//       Final balance 10, one redeem row, ledger consistent.

	svc, store := newTestService(t)
	ctx := context.Background()
	alice := mustCreatePerson(t, store, "Alice")
	mug := mustCreateItem(t, store, "Mug", 20)

	_, err := svc.Grant(ctx, ledger.Admin(), alice.ID, 30, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Redeem(ctx, ledger.Member(alice.ID), alice.ID, mug.ID)
		}(i)
	}
	wg.Wait()

	var committed, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ledger.ErrInsufficientPoints):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed, "exactly one redemption should commit")
	assert.Equal(t, 1, rejected, "the loser should see insufficient points")

	person, err := store.GetPerson(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), person.Balance)

	txs, err := store.TransactionsForPerson(ctx, alice.ID)
	require.NoError(t, err)
	redeems := 0
	for _, tx := range txs {
		if tx.Kind == ledger.KindRedeem {
			redeems++
		}
	}
	assert.Equal(t, 1, redeems)

	requireLedgerConsistent(t, store, alice.ID)
}
