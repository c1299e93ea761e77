// Package storage defines the pluggable persistence boundary a
// ServerDocument loads from and saves to: document state snapshots plus
// an optional write-ahead log of applied transactions. Adapters treat
// document state as opaque bytes; the caller owns the encoding.
package storage

import (
	"context"

	"docengine/docerrors"
)

// Transform migrates or (de)obfuscates raw bytes on the way in or out of
// a Storage adapter: encryption, compression, schema migration.
type Transform func([]byte) ([]byte, error)

// Storage is the capability a ServerDocument persists through.
type Storage interface {
	// Load returns the most recently saved state for documentID. found
	// is false when no snapshot has ever been saved.
	Load(ctx context.Context, documentID string) (state []byte, found bool, err error)
	// Save persists state as the latest snapshot for documentID.
	Save(ctx context.Context, documentID string, state []byte) error
	// Delete removes any persisted snapshot for documentID.
	Delete(ctx context.Context, documentID string) error
}

// WALEntry is one write-ahead log record: a transaction applied at a
// specific version.
type WALEntry struct {
	Version   int64
	Tx        []byte
	Timestamp int64
}

// WAL is the optional write-ahead log capability. Appends happen before
// broadcast; a failed append rolls the submit back.
type WAL interface {
	Append(ctx context.Context, documentID string, entry WALEntry) error
	// Entries returns WAL records for documentID with version >
	// fromVersion, in increasing version order.
	Entries(ctx context.Context, documentID string, fromVersion int64) ([]WALEntry, error)
}

// applyTransform runs t over data if t is non-nil, otherwise passes data
// through unchanged.
func applyTransform(t Transform, data []byte) ([]byte, error) {
	if t == nil {
		return data, nil
	}
	return t(data)
}

func wrapStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return docerrors.ErrStorage{Op: op, Message: err.Error()}
}
