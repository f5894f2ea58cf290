/*
identity.go - Mapping authenticated callers to person records

PURPOSE:
  Authentication itself is an external collaborator: some identity
  provider in front of the service hands us an opaque external account
  reference and a display name. Resolve maps that reference to a person
  record, creating one with a zero balance on first contact.

  Creation is an explicit operation on this boundary, not a side effect
  buried inside a balance query.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const fallbackName = "User"

// IdentityResolver performs the upsert-or-create lookup for
// authenticated self-service callers.
type IdentityResolver struct {
	store  IdentityStore
	logger *zap.Logger
}

func NewIdentityResolver(store IdentityStore, logger *zap.Logger) *IdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{store: store, logger: logger}
}

// Resolve returns the person linked to externalID, creating one on
// first contact. displayName seeds the new person's name; when it
// collides with an existing name the person gets a short random suffix
// instead of failing the sign-in.
func (r *IdentityResolver) Resolve(ctx context.Context, externalID, displayName string) (*Person, error) {
	if externalID == "" {
		return nil, ErrNotAuthorized
	}

	person, err := r.store.GetPersonByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if person != nil {
		return person, nil
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = fallbackName
	}

	person, err = r.store.CreatePerson(ctx, name, externalID)
	if errors.Is(err, ErrNameTaken) {
		// Display names are not unique across providers; person names are.
		suffixed := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
		person, err = r.store.CreatePerson(ctx, suffixed, externalID)
	}
	if errors.Is(err, ErrIdentityTaken) {
		// Lost a first-contact race with a concurrent request for the
		// same account; the winner's record is the one we want.
		return r.store.GetPersonByExternalID(ctx, externalID)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("person created on first contact",
		zap.Int64("person_id", int64(person.ID)),
		zap.String("name", person.Name))
	return person, nil
}
