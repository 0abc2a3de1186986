// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package confdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// sectionState represents the lifecycle state of a Section.
type sectionState int

const (
	stateUninitialized sectionState = iota
	stateLoading
	stateReady
	stateFailed
	stateDropped
)

// String implements fmt.Stringer.
func (s sectionState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateLoading:
		return "loading"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	case stateDropped:
		return "dropped"
	default:
		panic(fmt.Sprintf("unexpected state %d", s))
	}
}

// generation is shared by all Section instances of one table loaded between two drops.
type generation struct {
	dropped atomic.Bool
}

// Section is a named collection of configuration values cached in memory.
//
// Values are JSON-serializable.
// Reads are served from memory; writes update memory immediately and are persisted asynchronously.
//
// Section is safe for concurrent use.
type Section struct {
	c    *Client
	l    *zap.Logger
	name string
	gen  *generation

	mu    sync.RWMutex
	state sectionState
	cache map[string]string // key -> JSON
	dirty bool
}

// newSection returns a new uninitialized Section.
func newSection(c *Client, l *zap.Logger, name string, gen *generation) *Section {
	return &Section{
		c:    c,
		l:    l.With(zap.String("section", name)),
		name: name,
		gen:  gen,
	}
}

// load reads all rows of the table into the cache.
//
// It runs on the client's worker once per instance.
func (s *Section) load(ctx context.Context, t backend.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateUninitialized {
		panic(fmt.Sprintf("Section.load: unexpected state %s", s.state))
	}

	s.state = stateLoading

	rows, err := t.Scan(ctx)
	if err != nil {
		s.state = stateFailed
		return lazyerrors.Error(err)
	}

	s.cache = make(map[string]string, len(rows))
	for _, row := range rows {
		s.cache[row.Key] = row.Value
	}

	s.state = stateReady

	s.l.Debug("Section loaded.", zap.Int("keys", len(rows)))

	return nil
}

// checkReady returns an error if the section can't be used.
//
// s.mu must be held.
func (s *Section) checkReady() error {
	if s.gen.dropped.Load() {
		return fmt.Errorf("%w: %s", ErrSectionDropped, s.name)
	}

	switch s.state {
	case stateReady:
		return nil
	case stateDropped:
		return fmt.Errorf("%w: %s", ErrSectionDropped, s.name)
	case stateUninitialized, stateLoading, stateFailed:
		return fmt.Errorf("%w: %s is %s", ErrNotReady, s.name, s.state)
	default:
		panic(fmt.Sprintf("unexpected state %d", s.state))
	}
}

// lookup returns the cached JSON value for the given normalized key.
func (s *Section) lookup(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkReady(); err != nil {
		return "", false, err
	}

	v, ok := s.cache[key]

	return v, ok, nil
}

// Name returns the normalized section name.
func (s *Section) Name() string {
	return s.name
}

// Get returns the value for the given key.
//
// JSON objects are returned as map[string]any, arrays as []any, and numbers as float64.
// If the key is absent, *NonExistentError is returned.
func (s *Section) Get(key string) (any, error) {
	key, err := normalizeName(key)
	if err != nil {
		return nil, err
	}

	v, ok, err := s.lookup(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, &NonExistentError{Section: s.name, Key: key}
	}

	var res any
	if err = json.Unmarshal([]byte(v), &res); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// GetDefault is like Get, but returns def if the key is absent.
func (s *Section) GetDefault(key string, def any) (any, error) {
	res, err := s.Get(key)
	if err == nil {
		return res, nil
	}

	var e *NonExistentError
	if errors.As(err, &e) {
		return def, nil
	}

	return nil, err
}

// Decode decodes the value for the given key into v, as json.Unmarshal does.
//
// If the key is absent, *NonExistentError is returned.
func (s *Section) Decode(key string, v any) error {
	key, err := normalizeName(key)
	if err != nil {
		return err
	}

	raw, ok, err := s.lookup(key)
	if err != nil {
		return err
	}

	if !ok {
		return &NonExistentError{Section: s.name, Key: key}
	}

	if err = json.Unmarshal([]byte(raw), v); err != nil {
		return lazyerrors.Errorf("%s.%s: %w", s.name, key, err)
	}

	return nil
}

// GetAll returns a snapshot of all values.
//
// The returned map is not affected by subsequent writes.
func (s *Section) GetAll() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkReady(); err != nil {
		return nil, err
	}

	res := make(map[string]any, len(s.cache))

	for k, raw := range s.cache {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, lazyerrors.Errorf("%s.%s: %w", s.name, k, err)
		}

		res[k] = v
	}

	return res, nil
}

// Keys returns sorted cached keys.
func (s *Section) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkReady(); err != nil {
		return nil, err
	}

	res := maps.Keys(s.cache)
	slices.Sort(res)

	return res, nil
}

// Set sets the value for the given key.
//
// The value is visible to reads immediately.
// The database write is queued; the returned Pending reports its result and may be discarded.
// Encoding errors are returned directly, and nothing is changed in that case.
func (s *Section) Set(key string, value any) (*Pending, error) {
	key, err := normalizeName(key)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, lazyerrors.Errorf("%s.%s: %w", s.name, key, err)
	}

	now := s.c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.checkReady(); err != nil {
		return nil, err
	}

	row := backend.Row{
		Key:       key,
		Value:     string(raw),
		UpdatedAt: now,
	}

	if _, ok := s.cache[key]; !ok {
		row.CreatedAt = now
	}

	s.cache[key] = row.Value

	// enqueued under the lock so that the queue order matches the cache order
	return s.c.run(context.Background(), "set", func(ctx context.Context, b backend.Backend) error {
		if err := b.Table(s.name).Upsert(ctx, row); err != nil {
			return s.writeFailed("set", key, err)
		}

		return nil
	}), nil
}

// Delete removes the given key.
//
// Deleting an absent key is not an error.
// As with Set, the database write is queued.
func (s *Section) Delete(key string) (*Pending, error) {
	key, err := normalizeName(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.checkReady(); err != nil {
		return nil, err
	}

	delete(s.cache, key)

	return s.c.run(context.Background(), "delete", func(ctx context.Context, b backend.Backend) error {
		if err := b.Table(s.name).Delete(ctx, key); err != nil {
			return s.writeFailed("delete", key, err)
		}

		return nil
	}), nil
}

// writeFailed marks the section dirty and returns a wrapped error.
//
// It runs on the client's worker.
func (s *Section) writeFailed(op, key string, err error) error {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()

	s.l.Error(
		"Database write failed, cache may disagree with the database until reloaded.",
		zap.String("op", op), zap.String("key", key), zap.Error(err),
	)

	return lazyerrors.Errorf("%s %s.%s: %w", op, s.name, key, err)
}

// Dirty returns true if a database write failed since the section was loaded or reloaded.
func (s *Section) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dirty
}

// Reload replaces cached values with the database content and clears the dirty flag.
//
// It waits for all previously queued operations.
// Reads are blocked while the table is being read.
func (s *Section) Reload(ctx context.Context) error {
	s.mu.RLock()
	err := s.checkReady()
	s.mu.RUnlock()

	if err != nil {
		return err
	}

	return s.c.run(ctx, "reload", func(ctx context.Context, b backend.Backend) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.checkReady(); err != nil {
			return err
		}

		rows, err := b.Table(s.name).Scan(ctx)
		if err != nil {
			return lazyerrors.Error(err)
		}

		s.cache = make(map[string]string, len(rows))
		for _, row := range rows {
			s.cache[row.Key] = row.Value
		}

		s.dirty = false

		s.l.Info("Section reloaded.", zap.Int("keys", len(rows)))

		return nil
	}).Wait(ctx)
}

// isDropped returns true if the section was dropped.
func (s *Section) isDropped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == stateDropped || s.gen.dropped.Load()
}

// markDropped makes the section unusable.
func (s *Section) markDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateDropped
	s.cache = nil
}

// stats returns the number of cached keys and the dirty flag.
func (s *Section) stats() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.cache), s.dirty
}
