// Package kv is a JSON key-value store over pluggable backends.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Backend when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Backend stores raw values by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store serializes values as JSON documents.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get decodes the value under key into v. A missing key reports false with a nil error.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to deserialize %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}

	if err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.backend.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
