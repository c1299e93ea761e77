package storage

import (
	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"context"
)

// BadgerStorage is a Storage backed by an embedded Badger key-value
// store, for single-process deployments that want durability without an
// external database. A single Badger instance is keyed by document id.
type BadgerStorage struct {
	db        *badger.DB
	keyPrefix string
	onLoad    Transform
	onSave    Transform
}

// NewBadgerStorage wires an already-opened Badger database under
// keyPrefix.
func NewBadgerStorage(db *badger.DB, keyPrefix string, onLoad, onSave Transform) *BadgerStorage {
	return &BadgerStorage{db: db, keyPrefix: keyPrefix, onLoad: onLoad, onSave: onSave}
}

func (s *BadgerStorage) docKey(documentID string) []byte {
	return []byte(s.keyPrefix + ":doc:" + documentID)
}

// Load implements Storage.
func (s *BadgerStorage) Load(ctx context.Context, documentID string) ([]byte, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.docKey(documentID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStorageErr("load", err)
	}
	data, err := applyTransform(s.onLoad, raw)
	if err != nil {
		return nil, false, wrapStorageErr("load", err)
	}
	return data, true, nil
}

// Save implements Storage.
func (s *BadgerStorage) Save(ctx context.Context, documentID string, state []byte) error {
	data, err := applyTransform(s.onSave, state)
	if err != nil {
		return wrapStorageErr("save", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.docKey(documentID), data)
	})
	if err != nil {
		return wrapStorageErr("save", err)
	}
	return nil
}

// Delete implements Storage.
func (s *BadgerStorage) Delete(ctx context.Context, documentID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.docKey(documentID))
	})
	if err != nil {
		return wrapStorageErr("delete", err)
	}
	return nil
}
