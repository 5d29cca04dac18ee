// Package store is the persistent record store: named JSON records over a
// pluggable key/value backend. Failures never cross the store boundary; writes
// report false and reads fall back to the caller's default, both with a log line.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Record names shared by the core components
const (
	KeyEvaluations = "evaluations"
	KeyThresholds  = "thresholds"
	KeyAppearance  = "appearance"
	KeyTemplates   = "templates"
)

// DefaultNamespace prefixes every record key
const DefaultNamespace = "web3_bd_"

// RecordStore saves and loads JSON records by name
type RecordStore struct {
	backend   Backend
	namespace string
	quota     int64
	logger    *slog.Logger
}

// Option configures a RecordStore
type Option func(*RecordStore)

// WithNamespace overrides the key prefix
func WithNamespace(ns string) Option {
	return func(s *RecordStore) {
		s.namespace = ns
	}
}

// WithQuota limits the total stored bytes under the namespace. Zero disables the limit.
func WithQuota(bytes int64) Option {
	return func(s *RecordStore) {
		s.quota = bytes
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *RecordStore) {
		s.logger = logger
	}
}

// New wraps a backend
func New(backend Backend, opts ...Option) *RecordStore {
	s := &RecordStore{
		backend:   backend,
		namespace: DefaultNamespace,
		logger:    slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend exposes the underlying medium
func (s *RecordStore) Backend() Backend {
	return s.backend
}

// Quota returns the configured byte quota (0 = unlimited)
func (s *RecordStore) Quota() int64 {
	return s.quota
}

func (s *RecordStore) fullKey(key string) string {
	return s.namespace + key
}

// Save serializes value under key. It returns false when the change is not durable.
func (s *RecordStore) Save(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to serialize record", "key", key, "error", err)
		return false
	}

	if s.quota > 0 {
		used, err := s.usedExcept(ctx, key)
		if err != nil {
			s.logger.Error("failed to compute store usage", "key", key, "error", err)
			return false
		}
		if used+int64(len(data)) > s.quota {
			s.logger.Error("failed to save record",
				"key", key,
				"error", ErrQuotaExceeded,
				"bytes", len(data),
				"used", used,
				"quota", s.quota,
			)
			return false
		}
	}

	if err := s.backend.Write(ctx, s.fullKey(key), data); err != nil {
		s.logger.Error("failed to save record", "key", key, "error", err)
		return false
	}
	return true
}

// Get decodes the record under key into a T. Missing records, backend failures
// and malformed content all yield fallback; the latter two are logged.
func Get[T any](ctx context.Context, s *RecordStore, key string, fallback T) T {
	data, ok, err := s.backend.Read(ctx, s.fullKey(key))
	if err != nil {
		s.logger.Warn("failed to read record, using fallback", "key", key, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("corrupt record, using fallback", "key", key, "bytes", len(data), "error", err)
		return fallback
	}
	return out
}

// Has reports whether a record exists under key
func (s *RecordStore) Has(ctx context.Context, key string) bool {
	_, ok, err := s.backend.Read(ctx, s.fullKey(key))
	if err != nil {
		s.logger.Warn("failed to read record", "key", key, "error", err)
		return false
	}
	return ok
}

// Remove deletes one record
func (s *RecordStore) Remove(ctx context.Context, key string) bool {
	if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
		s.logger.Error("failed to remove record", "key", key, "error", err)
		return false
	}
	return true
}

// Clear wipes every record under the namespace
func (s *RecordStore) Clear(ctx context.Context) bool {
	if s.namespace == "" {
		if err := s.backend.Clear(ctx); err != nil {
			s.logger.Error("failed to clear store", "error", err)
			return false
		}
		return true
	}

	keys, err := s.keys(ctx)
	if err != nil {
		s.logger.Error("failed to clear store", "error", err)
		return false
	}
	for _, key := range keys {
		if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
			s.logger.Error("failed to clear store", "key", key, "error", err)
			return false
		}
	}
	s.logger.Info("record store cleared", "records", len(keys))
	return true
}

// Size returns the stored byte size of the named records. Missing records count as zero.
func (s *RecordStore) Size(ctx context.Context, keys ...string) int64 {
	var total int64
	for _, key := range keys {
		data, ok, err := s.backend.Read(ctx, s.fullKey(key))
		if err != nil {
			s.logger.Warn("failed to read record size", "key", key, "error", err)
			continue
		}
		if ok {
			total += int64(len(data))
		}
	}
	return total
}

// RecordUsage describes the size of one record
type RecordUsage struct {
	Key   string `json:"key"`
	Bytes int64  `json:"bytes"`
	Human string `json:"human"`
}

// Usage summarizes the space taken by the namespace
type Usage struct {
	Records    []RecordUsage `json:"records"`
	TotalBytes int64         `json:"totalBytes"`
	Total      string        `json:"total"`
	QuotaBytes int64         `json:"quotaBytes,omitempty"`
	Percent    float64       `json:"percent,omitempty"`
}

// Usage reports per-record and total sizes
func (s *RecordStore) Usage(ctx context.Context) (*Usage, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	usage := &Usage{QuotaBytes: s.quota}
	for _, key := range keys {
		size := s.Size(ctx, key)
		usage.Records = append(usage.Records, RecordUsage{
			Key:   key,
			Bytes: size,
			Human: humanize.Bytes(uint64(size)),
		})
		usage.TotalBytes += size
	}
	usage.Total = humanize.Bytes(uint64(usage.TotalBytes))
	if s.quota > 0 {
		usage.Percent = float64(usage.TotalBytes) / float64(s.quota) * 100
	}
	return usage, nil
}

// Ping checks the backend
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend
func (s *RecordStore) Close() error {
	return s.backend.Close()
}

// keys lists record names (namespace stripped) under the namespace
func (s *RecordStore) keys(ctx context.Context) ([]string, error) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, s.namespace) {
			keys = append(keys, strings.TrimPrefix(k, s.namespace))
		}
	}
	return keys, nil
}

func (s *RecordStore) usedExcept(ctx context.Context, except string) (int64, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		if key == except {
			continue
		}
		total += s.Size(ctx, key)
	}
	return total, nil
}
