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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/backend/sqlite"
	"github.com/FerretDB/confdb/internal/util/testutil"
)

// errInjected is returned by flakyBackend's writes when failures are enabled.
var errInjected = errors.New("injected failure")

// flakyBackend is a backend that fails writes on request.
type flakyBackend struct {
	backend.Backend
	fail atomic.Bool
}

func (b *flakyBackend) Table(name string) backend.Table {
	return &flakyTable{
		Table: b.Backend.Table(name),
		fail:  &b.fail,
	}
}

type flakyTable struct {
	backend.Table
	fail *atomic.Bool
}

func (t *flakyTable) Upsert(ctx context.Context, row backend.Row) error {
	if t.fail.Load() {
		return errInjected
	}

	return t.Table.Upsert(ctx, row)
}

func (t *flakyTable) Delete(ctx context.Context, key string) error {
	if t.fail.Load() {
		return errInjected
	}

	return t.Table.Delete(ctx, key)
}

// attachPath attaches a new client to the given database file.
// The client is closed when test is finished.
func attachPath(t *testing.T, path string) *Client {
	t.Helper()

	c, err := Attach(testutil.Ctx(t), path, testutil.Logger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	return c
}

// setup attaches a new client to a new database file.
func setup(t *testing.T) *Client {
	t.Helper()

	return attachPath(t, testutil.DatabasePath(t))
}

// setupFlaky is like setup, but writes can be made to fail.
func setupFlaky(t *testing.T) (*Client, *flakyBackend) {
	t.Helper()

	path := testutil.DatabasePath(t)

	var fb *flakyBackend

	c, err := attach(testutil.Ctx(t), testutil.Logger(t), func(ctx context.Context, l *zap.Logger) (backend.Backend, error) {
		b, err := sqlite.Open(ctx, path, l)
		if err != nil {
			return nil, err
		}

		fb = &flakyBackend{Backend: b}

		return fb, nil
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	return c, fb
}

// getSection returns a section from the default Storage.
func getSection(t *testing.T, c *Client, name string) *Section {
	t.Helper()

	s, err := GetStorage(c).Get(testutil.Ctx(t), name)
	require.NoError(t, err)

	return s
}
