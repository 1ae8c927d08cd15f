package state

import (
	"context"
	"errors"
	"strings"
)

// Common errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key")
)

// Store is a key-value store.
type Store interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Returns nil if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the store.
	Close() error
}

// ValidateKey checks that key is a non-empty run of dot-separated tokens
// made of letters, digits, '-', '_' and '='.
func ValidateKey(key string) error {
	if key == "" || len(key) > 1024 {
		return ErrInvalidKey
	}
	for _, token := range strings.Split(key, ".") {
		if token == "" {
			return ErrInvalidKey
		}
		for _, r := range token {
			if !validKeyRune(r) {
				return ErrInvalidKey
			}
		}
	}
	return nil
}

func validKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '=':
		return true
	}
	return false
}
