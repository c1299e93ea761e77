package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoSnapshot is the document shape stored in the snapshots collection.
type mongoSnapshot struct {
	ID    string `bson:"_id"`
	State []byte `bson:"state"`
}

// MongoStorage is a Storage backed by a single MongoDB collection, one
// document per document id.
type MongoStorage struct {
	collection *mongo.Collection
	onLoad     Transform
	onSave     Transform
}

// NewMongoStorage wires an existing collection handle.
func NewMongoStorage(collection *mongo.Collection, onLoad, onSave Transform) *MongoStorage {
	return &MongoStorage{collection: collection, onLoad: onLoad, onSave: onSave}
}

// Load implements Storage.
func (s *MongoStorage) Load(ctx context.Context, documentID string) ([]byte, bool, error) {
	var doc mongoSnapshot
	err := s.collection.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStorageErr("load", err)
	}
	data, err := applyTransform(s.onLoad, doc.State)
	if err != nil {
		return nil, false, wrapStorageErr("load", err)
	}
	return data, true, nil
}

// Save implements Storage.
func (s *MongoStorage) Save(ctx context.Context, documentID string, state []byte) error {
	data, err := applyTransform(s.onSave, state)
	if err != nil {
		return wrapStorageErr("save", err)
	}
	opts := options.Replace().SetUpsert(true)
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": documentID}, mongoSnapshot{ID: documentID, State: data}, opts)
	if err != nil {
		return wrapStorageErr("save", err)
	}
	return nil
}

// Delete implements Storage.
func (s *MongoStorage) Delete(ctx context.Context, documentID string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": documentID})
	if err != nil {
		return wrapStorageErr("delete", err)
	}
	return nil
}
