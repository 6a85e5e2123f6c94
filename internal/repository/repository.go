package repository

import (
	"context"
)

// SnapshotStore is the durable key/value store cart snapshots are written to.
type SnapshotStore interface {
	// Get returns the raw snapshot for key. A miss returns an error wrapping
	// apperrors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the snapshot stored under key.
	Set(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
