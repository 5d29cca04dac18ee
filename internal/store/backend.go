package store

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when a write would push the store past its byte quota
var ErrQuotaExceeded = errors.New("record store quota exceeded")

// Backend is the raw key/value medium behind a RecordStore
type Backend interface {
	// Read returns the stored bytes and whether the key exists
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every key the backend holds
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
