package ledger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotwire/points-engine/ledger"
	"github.com/hotwire/points-engine/store/sqlite"
)

func newTestResolver(t *testing.T) (*ledger.IdentityResolver, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewIdentityResolver(store, nil), store
}

func TestResolve_FirstContact_CreatesPerson(t *testing.T) {
	// GIVEN: An identity never seen before
	// WHEN: Resolving it
	// THEN: A person is created with a zero balance and the link stored

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	person, err := resolver.Resolve(ctx, "provider|u-42", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", person.Name)
	assert.Zero(t, person.Balance)
	assert.Equal(t, "provider|u-42", person.ExternalID)

	stored, err := store.GetPersonByExternalID(ctx, "provider|u-42")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, person.ID, stored.ID)
}

func TestResolve_RepeatContact_ReturnsSamePerson(t *testing.T) {
	// GIVEN: An identity resolved once
	// WHEN: Resolving it again, even with a changed display name
	// THEN: The same person record comes back; no duplicate is created

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "provider|u-42", "Ada Lovelace")
	require.NoError(t, err)

	second, err := resolver.Resolve(ctx, "provider|u-42", "Ada L.")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada Lovelace", second.Name, "display name changes do not rename the person")

	people, err := store.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestResolve_NameCollision_GetsSuffix(t *testing.T) {
	// GIVEN: A person named "Ada" already exists
	// WHEN: A different identity signs in with display name "Ada"
	// THEN: The new person is created with a random suffix, not rejected

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	_, err := store.CreatePerson(ctx, "Ada", "")
	require.NoError(t, err)

	person, err := resolver.Resolve(ctx, "provider|u-43", "Ada")
	require.NoError(t, err)
	assert.NotEqual(t, "Ada", person.Name)
	assert.True(t, strings.HasPrefix(person.Name, "Ada-"))
}

func TestResolve_BlankIdentity_Rejected(t *testing.T) {
	// GIVEN: No identity reference
	// WHEN: Resolving
	// THEN: ErrNotAuthorized

	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), "", "Ada")
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)
}

func TestResolve_BlankDisplayName_GetsFallback(t *testing.T) {
	// GIVEN: An identity with no usable display name
	// WHEN: Resolving for the first time
	// THEN: The person is created under the fallback name

	resolver, _ := newTestResolver(t)

	person, err := resolver.Resolve(context.Background(), "provider|u-44", "   ")
	require.NoError(t, err)
	assert.Equal(t, "User", person.Name)
}
