package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store using a NATS JetStream KV bucket.
type NATSStore struct {
	kv     jetstream.KeyValue
	closed atomic.Bool
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// TTL expires progress of abandoned matches (0 = keep forever).
	TTL time.Duration

	// Replicas for clustered JetStream. Default: 1
	Replicas int
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:   "taskparty",
		TTL:      24 * time.Hour,
		Replicas: 1,
	}
}

// NewNATSStore creates or binds the KV bucket.
func NewNATSStore(ctx context.Context, cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultNATSStoreConfig().Bucket
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = DefaultNATSStoreConfig().Replicas
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		TTL:      cfg.TTL,
		History:  1,
		Replicas: cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &NATSStore{kv: kv}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return entry.Value(), nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.kv.Purge(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

func (s *NATSStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close marks the store closed. The NATS connection belongs to the caller.
func (s *NATSStore) Close() error {
	s.closed.Store(true)
	return nil
}
