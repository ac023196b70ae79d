// Package cache provides a content-addressed result cache keyed by scene
// fingerprints. Entries are write-once: the first writer wins, a later write
// of an equal result is a no-op, and a later write of a different result is a
// consistency violation reported as a *ConsistencyError.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/singleflight"
)

// DefaultFrontSize is the default number of payloads kept in the in-process LRU.
const DefaultFrontSize = 4096

// ErrCacheConsistency is wrapped by every *ConsistencyError.
var ErrCacheConsistency = errors.New("cache consistency violation")

// ConsistencyError reports two different results written under one
// fingerprint. It indicates a fingerprinting bug and must not be masked.
type ConsistencyError struct {
	Fingerprint string
	Existing    []byte
	Incoming    []byte
	Diff        string
}

// Error implements error.
func (consistencyErr *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: fingerprint %s already holds a different result\n%s",
		ErrCacheConsistency, consistencyErr.Fingerprint, consistencyErr.Diff)
}

// Unwrap returns ErrCacheConsistency.
func (consistencyErr *ConsistencyError) Unwrap() error {
	return ErrCacheConsistency
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Computes  int64
	Writes    int64
	Conflicts int64
	Entries   int
}

// HitRate returns the hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	frontSize int
	codec     Codec
	logger    *slog.Logger
	now       func() time.Time
}

// WithFrontSize sets the number of payloads kept in memory. Zero disables the front.
func WithFrontSize(size int) Option {
	return func(opts *options) { opts.frontSize = size }
}

// WithCodec replaces the entry codec.
func WithCodec(codec Codec) Option {
	return func(opts *options) { opts.codec = codec }
}

// WithLogger sets the logger used for consistency reports.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) { opts.logger = logger }
}

// WithClock sets the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

// Cache stores results of type T by fingerprint. Values round-trip through
// JSON, so T must marshal deterministically. It is safe for concurrent use.
type Cache[T any] struct {
	store  Store
	codec  Codec
	front  *lru.Cache[string, []byte]
	flight singleflight.Group
	logger *slog.Logger
	now    func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	computes  atomic.Int64
	writes    atomic.Int64
	conflicts atomic.Int64
}

// New creates a Cache over store. The cache owns the store: Close closes it.
func New[T any](store Store, opts ...Option) (*Cache[T], error) {
	cfg := options{
		frontSize: DefaultFrontSize,
		codec:     LZ4JSONCodec{},
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[T]{
		store:  store,
		codec:  cfg.codec,
		logger: cfg.logger,
		now:    cfg.now,
	}

	if cfg.frontSize > 0 {
		front, err := lru.New[string, []byte](cfg.frontSize)
		if err != nil {
			return nil, fmt.Errorf("create lru front: %w", err)
		}

		c.front = front
	}

	return c, nil
}

// Get returns the result stored under fingerprint. A miss is reported with
// ok=false and a nil error.
func (c *Cache[T]) Get(ctx context.Context, fingerprint string) (T, bool, error) {
	var zero T

	payload, ok, err := c.payload(ctx, fingerprint)
	if err != nil {
		return zero, false, err
	}

	if !ok {
		c.misses.Add(1)

		return zero, false, nil
	}

	value, err := unmarshal[T](payload)
	if err != nil {
		return zero, false, err
	}

	c.hits.Add(1)

	return value, true, nil
}

// Put stores value under fingerprint. Writing an equal value again is a
// no-op; writing a different value returns a *ConsistencyError and keeps the
// first value.
func (c *Cache[T]) Put(ctx context.Context, fingerprint string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	return c.putPayload(ctx, fingerprint, payload)
}

// GetOrCompute returns the cached result for fingerprint, computing and
// storing it on a miss. Concurrent callers for the same fingerprint share one
// computation. computed reports whether this caller ran compute: callers that
// joined another caller's computation get false, as on a cache hit.
func (c *Cache[T]) GetOrCompute(
	ctx context.Context, fingerprint string, compute func(context.Context) (T, error),
) (value T, computed bool, err error) {
	value, ok, err := c.Get(ctx, fingerprint)
	if err != nil || ok {
		return value, false, err
	}

	type flightResult struct {
		value    T
		computed bool
	}

	// Only the leader of the flight runs the function, so only its ran is set.
	var ran bool

	outcome, err, _ := c.flight.Do(fingerprint, func() (any, error) {
		ran = true

		// Another flight may have finished between the miss and this call.
		payload, found, lookupErr := c.payload(ctx, fingerprint)
		if lookupErr != nil {
			return nil, lookupErr
		}

		if found {
			cached, decodeErr := unmarshal[T](payload)
			if decodeErr != nil {
				return nil, decodeErr
			}

			return flightResult{value: cached}, nil
		}

		c.computes.Add(1)

		fresh, computeErr := compute(ctx)
		if computeErr != nil {
			return nil, computeErr
		}

		putErr := c.Put(ctx, fingerprint, fresh)
		if putErr != nil {
			return nil, putErr
		}

		return flightResult{value: fresh, computed: true}, nil
	})
	if err != nil {
		var zero T

		return zero, false, err
	}

	result, _ := outcome.(flightResult)

	return result.value, result.computed && ran, nil
}

// Stats returns cache statistics.
func (c *Cache[T]) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Writes:    c.writes.Load(),
		Conflicts: c.conflicts.Load(),
	}

	if c.front != nil {
		stats.Entries = c.front.Len()
	}

	return stats
}

// Ping reads key from the store, bypassing the front and the statistics. A
// missing key is not an error.
func (c *Cache[T]) Ping(ctx context.Context, key string) error {
	_, err := c.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("ping cache store: %w", err)
	}

	return nil
}

// Close closes the underlying store.
func (c *Cache[T]) Close() error {
	if c.front != nil {
		c.front.Purge()
	}

	err := c.store.Close()
	if err != nil {
		return fmt.Errorf("close cache store: %w", err)
	}

	return nil
}

func (c *Cache[T]) payload(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	if c.front != nil {
		if payload, ok := c.front.Get(fingerprint); ok {
			return payload, true, nil
		}
	}

	data, err := c.store.Get(ctx, fingerprint)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", fingerprint, err)
	}

	stored, err := decodeEntry(c.codec, fingerprint, data)
	if err != nil {
		return nil, false, err
	}

	c.remember(fingerprint, stored.Payload)

	return stored.Payload, true, nil
}

func (c *Cache[T]) putPayload(ctx context.Context, fingerprint string, payload []byte) error {
	existing, found, err := c.payload(ctx, fingerprint)
	if err != nil {
		return err
	}

	if found {
		return c.verify(fingerprint, existing, payload)
	}

	data, err := encodeEntry(c.codec, Entry{Fingerprint: fingerprint, Payload: payload, WrittenAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = c.store.Create(ctx, fingerprint, data)
	if errors.Is(err, ErrExists) {
		// Lost the race to another writer; its value stands.
		existing, found, err = c.payload(ctx, fingerprint)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("cache put %s: %w after conflicting create", fingerprint, ErrNotFound)
		}

		return c.verify(fingerprint, existing, payload)
	}

	if err != nil {
		return fmt.Errorf("cache put %s: %w", fingerprint, err)
	}

	c.writes.Add(1)
	c.remember(fingerprint, payload)

	return nil
}

func (c *Cache[T]) verify(fingerprint string, existing, incoming []byte) error {
	if bytes.Equal(existing, incoming) {
		return nil
	}

	c.conflicts.Add(1)

	consistencyErr := &ConsistencyError{
		Fingerprint: fingerprint,
		Existing:    existing,
		Incoming:    incoming,
		Diff:        payloadDiff(existing, incoming),
	}

	c.logger.Error("cache consistency violation", "fingerprint", fingerprint, "diff", consistencyErr.Diff)

	return consistencyErr
}

func (c *Cache[T]) remember(fingerprint string, payload []byte) {
	if c.front != nil {
		c.front.Add(fingerprint, payload)
	}
}

func unmarshal[T any](payload []byte) (T, error) {
	var value T

	err := json.Unmarshal(payload, &value)
	if err != nil {
		return value, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}

	return value, nil
}

// payloadDiff renders a line diff of two JSON payloads, indented so that
// each field sits on its own line.
func payloadDiff(existing, incoming []byte) string {
	from := indentJSON(existing)
	to := indentJSON(incoming)

	dmp := diffmatchpatch.New()
	fromRunes, toRunes, lines := dmp.DiffLinesToRunes(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(fromRunes, toRunes, false), lines)

	var out strings.Builder

	for _, diff := range diffs {
		var prefix string

		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
			continue
		}

		for line := range strings.Lines(diff.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}

	return out.String()
}

func indentJSON(payload []byte) string {
	var buf bytes.Buffer

	err := json.Indent(&buf, payload, "", "  ")
	if err != nil {
		return string(payload) + "\n"
	}

	buf.WriteByte('\n')

	return buf.String()
}
