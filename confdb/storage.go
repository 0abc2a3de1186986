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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// StorageParams represent the parameters of Storage.
type StorageParams struct {
	// Revalidate makes every Storage.Get call check the database table
	// and load a fresh Section instead of returning the registered one.
	// Instances returned earlier stay usable until the section is deleted;
	// Storage.Delete makes all of them unusable.
	Revalidate bool
}

// Storage resolves section names to Section instances.
//
// By default, the first Get call for a name loads the section and registers it;
// subsequent calls return the same instance without touching the database.
//
// Section names are case-insensitive for ASCII letters, as SQLite table names are.
//
// Storage is safe for concurrent use.
type Storage struct {
	c          *Client
	l          *zap.Logger
	revalidate bool

	rw          sync.RWMutex
	sections    map[string]*Section    // folded name -> registered section
	generations map[string]*generation // folded name -> current generation

	sf singleflight.Group

	sectionsDesc *prometheus.Desc
	keysDesc     *prometheus.Desc
	dirtyDesc    *prometheus.Desc
}

// GetStorage returns a new Storage with default parameters for the given client.
func GetStorage(c *Client) *Storage {
	return NewStorage(c, nil)
}

// NewStorage returns a new Storage for the given client.
//
// Each Storage has its own registry of sections.
// If params is nil, default parameters are used.
func NewStorage(c *Client, params *StorageParams) *Storage {
	if params == nil {
		params = new(StorageParams)
	}

	constLabels := prometheus.Labels{"client": c.id}

	return &Storage{
		c:          c,
		l:          c.l.Named("storage"),
		revalidate: params.Revalidate,
		sections:    map[string]*Section{},
		generations: map[string]*generation{},
		sectionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "sections"),
			"The number of registered sections.",
			nil, constLabels,
		),
		keysDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "keys"),
			"The number of cached keys.",
			[]string{"section"}, constLabels,
		),
		dirtyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "dirty"),
			"Whether the section's cache may disagree with the database.",
			[]string{"section"}, constLabels,
		),
	}
}

// registered returns the registered section with the given normalized name, or nil.
func (st *Storage) registered(name string) *Section {
	st.rw.RLock()
	defer st.rw.RUnlock()

	return st.sections[foldName(name)]
}

// currentGeneration returns the generation for the given normalized name, creating it if needed.
func (st *Storage) currentGeneration(name string) *generation {
	key := foldName(name)

	st.rw.Lock()
	defer st.rw.Unlock()

	gen := st.generations[key]
	if gen == nil {
		gen = new(generation)
		st.generations[key] = gen
	}

	return gen
}

// Get returns the section with the given name, creating its table if needed.
//
// The name is normalized: surrounding whitespace is removed and it is truncated to 63 characters.
// If a table with the same name in a different ASCII case exists, the section uses that table's name.
func (st *Storage) Get(ctx context.Context, name string) (*Section, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	for {
		if !st.revalidate {
			if s := st.registered(name); s != nil {
				return s, nil
			}
		}

		// the shared load must not be canceled by the first caller only
		loadCtx := context.WithoutCancel(ctx)

		ch := st.sf.DoChan(foldName(name), func() (any, error) {
			var s *Section

			err := st.c.run(loadCtx, "load", func(ctx context.Context, b backend.Backend) error {
				var err error
				s, err = st.resolve(ctx, b, name)

				return err
			}).Wait(loadCtx)

			return s, err
		})

		var res singleflight.Result

		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if res.Err != nil {
			return nil, res.Err
		}

		s := res.Val.(*Section)

		// the joined load could race with Delete
		if s.isDropped() {
			continue
		}

		return s, nil
	}
}

// resolve loads the section with the given name and registers it.
//
// It runs on the client's worker.
func (st *Storage) resolve(ctx context.Context, b backend.Backend, name string) (*Section, error) {
	if !st.revalidate {
		if s := st.registered(name); s != nil {
			return s, nil
		}
	}

	tables, err := b.Tables(ctx)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	i := slices.IndexFunc(tables, func(t string) bool { return foldName(t) == foldName(name) })
	if i >= 0 {
		name = tables[i]
	} else {
		if err = b.CreateTable(ctx, name); err != nil {
			return nil, lazyerrors.Error(err)
		}

		st.l.Info("Section table created.", zap.String("section", name))
	}

	s := newSection(st.c, st.l, name, st.currentGeneration(name))
	if err = s.load(ctx, b.Table(name)); err != nil {
		return nil, err
	}

	st.rw.Lock()
	st.sections[foldName(name)] = s
	st.rw.Unlock()

	return s, nil
}

// Delete drops the section with the given name and its table.
//
// Instances of that section obtained earlier become unusable;
// their operations return ErrSectionDropped.
// Deleting a section that does not exist is not an error.
func (st *Storage) Delete(ctx context.Context, name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	st.evict(name)

	return st.c.run(ctx, "drop", func(ctx context.Context, b backend.Backend) error {
		// evict again in case the section was loaded by a job queued before this one
		st.evict(name)

		if err := b.Table(name).Drop(ctx); err != nil {
			return lazyerrors.Error(err)
		}

		st.l.Info("Section dropped.", zap.String("section", name))

		return nil
	}).Wait(ctx)
}

// evict removes the section with the given name from the registry
// and marks all instances of the current generation dropped.
func (st *Storage) evict(name string) {
	key := foldName(name)

	st.rw.Lock()
	defer st.rw.Unlock()

	if gen := st.generations[key]; gen != nil {
		gen.dropped.Store(true)
		delete(st.generations, key)
	}

	s := st.sections[key]
	if s == nil {
		return
	}

	delete(st.sections, key)
	s.markDropped()
}

// Sections returns the sorted names of registered sections.
//
// It does not access the database.
func (st *Storage) Sections() []string {
	st.rw.RLock()
	defer st.rw.RUnlock()

	res := make([]string, 0, len(st.sections))
	for _, s := range st.sections {
		res = append(res, s.name)
	}

	slices.Sort(res)

	return res
}

// Tables returns the sorted names of all section tables in the database,
// including sections that were not loaded by this Storage.
func (st *Storage) Tables(ctx context.Context) ([]string, error) {
	var res []string

	err := st.c.run(ctx, "tables", func(ctx context.Context, b backend.Backend) error {
		tables, err := b.Tables(ctx)
		if err != nil {
			return lazyerrors.Error(err)
		}

		res = tables

		return nil
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}

	slices.Sort(res)

	return res, nil
}

// Describe implements prometheus.Collector.
func (st *Storage) Describe(ch chan<- *prometheus.Desc) {
	ch <- st.sectionsDesc
	ch <- st.keysDesc
	ch <- st.dirtyDesc
}

// Collect implements prometheus.Collector.
func (st *Storage) Collect(ch chan<- prometheus.Metric) {
	st.rw.RLock()
	defer st.rw.RUnlock()

	ch <- prometheus.MustNewConstMetric(st.sectionsDesc, prometheus.GaugeValue, float64(len(st.sections)))

	for _, s := range st.sections {
		keys, dirty := s.stats()

		var d float64
		if dirty {
			d = 1
		}

		ch <- prometheus.MustNewConstMetric(st.keysDesc, prometheus.GaugeValue, float64(keys), s.name)
		ch <- prometheus.MustNewConstMetric(st.dirtyDesc, prometheus.GaugeValue, d, s.name)
	}
}

// check interfaces
var (
	_ prometheus.Collector = (*Storage)(nil)
)
