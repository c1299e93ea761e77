// Package config assembles the storage, WAL and broadcaster backends a
// DocumentManager runs on from a small set of named options, the way a
// deployment's environment or flags would select them.
package config

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"docengine/primitive"
	"docengine/pubsub"
	"docengine/server"
	"docengine/storage"
)

// Backend names a pluggable implementation for a concern. The zero value
// "" is treated as "memory" everywhere it's read.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendBadger Backend = "badger"
	BackendMongo  Backend = "mongo"
)

// Options collects everything needed to build a DocumentManager's storage
// stack. Not every field applies to every Backend; see Build.
type Options struct {
	StorageBackend Backend
	WALBackend     Backend
	RelayBackend   Backend

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	// BadgerDB and MongoCollection are supplied by the caller when
	// StorageBackend selects them; config does not own their lifecycle
	// (open/close is the caller's responsibility).
	BadgerDB        *badgerdb.DB
	MongoCollection *mongo.Collection

	ManagerCapacity int
}

// Default returns the single-process, no-external-dependency option set:
// everything in memory, suitable for local development and tests.
func Default() *Options {
	return &Options{
		StorageBackend:  BackendMemory,
		WALBackend:      BackendMemory,
		RelayBackend:    BackendMemory,
		RedisAddr:       "localhost:6379",
		KeyPrefix:       "docengine",
		ManagerCapacity: 256,
	}
}

// Built is the concrete set of backends Build assembled, handed to
// server.NewManager via the matching With... options.
type Built struct {
	Storage     storage.Storage
	WAL         storage.WAL
	Broadcaster pubsub.Broadcaster
	RedisClient *redis.Client
}

// Build resolves opts into concrete backend instances. Callers that need
// the raw backends too (e.g. to Close a Redis client on shutdown) get them
// from the returned Built; pass it to NewManager to get a DocumentManager
// wired to all three.
func Build(ctx context.Context, opts *Options) (*Built, error) {
	if opts == nil {
		opts = Default()
	}

	built := &Built{}

	needsRedis := opts.StorageBackend == BackendRedis || opts.WALBackend == BackendRedis || opts.RelayBackend == BackendRedis
	if needsRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("config: connect to redis: %w", err)
		}
		built.RedisClient = client
	}

	st, err := buildStorage(opts, built)
	if err != nil {
		return nil, err
	}
	built.Storage = st

	wal, err := buildWAL(opts, built)
	if err != nil {
		return nil, err
	}
	built.WAL = wal

	relay, err := buildRelay(opts, built)
	if err != nil {
		return nil, err
	}
	built.Broadcaster = relay

	return built, nil
}

// NewManager builds a DocumentManager for schema using built's backends
// and opts.ManagerCapacity.
func NewManager(schema primitive.Primitive, built *Built, opts *Options) *server.DocumentManager {
	if opts == nil {
		opts = Default()
	}
	return server.NewManager(schema,
		server.WithManagerStorage(built.Storage),
		server.WithManagerWAL(built.WAL),
		server.WithManagerBroadcaster(built.Broadcaster),
		server.WithCapacity(opts.ManagerCapacity),
	)
}

func buildStorage(opts *Options, built *Built) (storage.Storage, error) {
	switch opts.StorageBackend {
	case "", BackendMemory:
		return storage.NewMemoryStorage(nil, nil), nil
	case BackendRedis:
		return storage.NewRedisStorage(built.RedisClient, opts.KeyPrefix, nil, nil), nil
	case BackendBadger:
		if opts.BadgerDB == nil {
			return nil, fmt.Errorf("config: badger storage backend requires Options.BadgerDB")
		}
		return storage.NewBadgerStorage(opts.BadgerDB, opts.KeyPrefix, nil, nil), nil
	case BackendMongo:
		if opts.MongoCollection == nil {
			return nil, fmt.Errorf("config: mongo storage backend requires Options.MongoCollection")
		}
		return storage.NewMongoStorage(opts.MongoCollection, nil, nil), nil
	default:
		return nil, fmt.Errorf("config: unsupported storage backend %q", opts.StorageBackend)
	}
}

func buildWAL(opts *Options, built *Built) (storage.WAL, error) {
	switch opts.WALBackend {
	case "", BackendMemory:
		return storage.NewMemoryWAL(), nil
	case BackendRedis:
		return storage.NewRedisWAL(built.RedisClient, opts.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("config: unsupported WAL backend %q", opts.WALBackend)
	}
}

func buildRelay(opts *Options, built *Built) (pubsub.Broadcaster, error) {
	switch opts.RelayBackend {
	case "", BackendMemory:
		return pubsub.NewMemory(), nil
	case BackendRedis:
		return pubsub.NewRedis(built.RedisClient), nil
	default:
		return nil, fmt.Errorf("config: unsupported relay backend %q", opts.RelayBackend)
	}
}

// AutoSaveLoop periodically saves every resident document so state isn't
// lost between explicit saves. It blocks until ctx is cancelled; run it
// in its own goroutine.
func AutoSaveLoop(ctx context.Context, manager *server.DocumentManager, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.SaveAllResident(ctx)
		}
	}
}
