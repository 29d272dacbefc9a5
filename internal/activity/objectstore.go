package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/substrate"
)

// ObjectStore contains activities against the backup artifact store.
type ObjectStore struct {
	store *substrate.ObjectStore
}

// NewObjectStore creates a new ObjectStore activity struct.
func NewObjectStore(store *substrate.ObjectStore) *ObjectStore {
	return &ObjectStore{store: store}
}

// VerifyObjectStoreAccount probes the store with the configured credentials.
// Backups fail fast here instead of inside the guest.
func (a *ObjectStore) VerifyObjectStoreAccount(ctx context.Context) error {
	return a.store.VerifyAccount(ctx)
}
