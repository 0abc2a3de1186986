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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/confdb/internal/backend/sqlite"
	"github.com/FerretDB/confdb/internal/util/testutil"
)

func TestSectionReadWrite(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c := setup(t)
	s := getSection(t, c, "default")

	// visible before the write is done
	_, err := s.Set("str", "bar")
	require.NoError(t, err)

	v, err := s.Get("str")
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	_, err = s.Set(" num ", 42)
	require.NoError(t, err)

	v, err = s.Get("num")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	_, err = s.Set("obj", map[string]any{"a": []int{1, 2}, "b": nil})
	require.NoError(t, err)

	v, err = s.Get("obj")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}, "b": nil}, v)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrNonExistent)

	var e *NonExistentError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, &NonExistentError{Section: "default", Key: "missing"}, e)
	assert.Equal(t, `key "missing" does not exist in default`, err.Error())

	v, err = s.GetDefault("missing", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	v, err = s.GetDefault("str", "def")
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	_, err = s.Get("")
	assert.ErrorIs(t, err, ErrInvalidName)

	var obj struct {
		A []int `json:"a"`
	}
	require.NoError(t, s.Decode("obj", &obj))
	assert.Equal(t, []int{1, 2}, obj.A)

	assert.ErrorIs(t, s.Decode("missing", &obj), ErrNonExistent)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"num", "obj", "str"}, keys)

	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"str": "bar",
		"num": float64(42),
		"obj": map[string]any{"a": []any{float64(1), float64(2)}, "b": nil},
	}, all)

	// snapshot is not affected by writes
	_, err = s.Set("str", "baz")
	require.NoError(t, err)
	assert.Equal(t, "bar", all["str"])

	p, err := s.Delete("str")
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	_, err = s.Get("str")
	assert.ErrorIs(t, err, ErrNonExistent)

	p, err = s.Delete("str")
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	_, err = s.Set("bad", make(chan int))
	assert.Error(t, err)

	_, err = s.Get("bad")
	assert.ErrorIs(t, err, ErrNonExistent)

	assert.False(t, s.Dirty())
}

func TestSectionPersistence(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	path := testutil.DatabasePath(t)

	c := attachPath(t, path)
	s := getSection(t, c, "Some Section")

	_, err := s.Set("foo", "bar")
	require.NoError(t, err)
	_, err = s.Set("baz", []any{true, 1.5})
	require.NoError(t, err)
	_, err = s.Set("deleted", 1)
	require.NoError(t, err)
	_, err = s.Delete("deleted")
	require.NoError(t, err)

	require.NoError(t, c.Close())

	c = attachPath(t, path)
	s = getSection(t, c, "Some Section")

	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": "bar", "baz": []any{true, 1.5}}, all)

	tables, err := GetStorage(c).Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Some Section"}, tables)
}

func TestSectionTimestamps(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	path := testutil.DatabasePath(t)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	c := attachPath(t, path)
	s := getSection(t, c, "default")

	c.now = func() time.Time { return created }

	p, err := s.Set("foo", 1)
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	c.now = func() time.Time { return updated }

	p, err = s.Set("foo", 2)
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	require.NoError(t, c.Close())

	b, err := sqlite.Open(ctx, path, testutil.Logger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})

	rows, err := b.Table("default").Scan(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "foo", rows[0].Key)
	assert.Equal(t, "2", rows[0].Value)
	assert.Equal(t, created, rows[0].CreatedAt)
	assert.Equal(t, updated, rows[0].UpdatedAt)
}

func TestSectionWriteFailure(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, fb := setupFlaky(t)
	s := getSection(t, c, "default")

	p, err := s.Set("foo", "old")
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	fb.fail.Store(true)

	p, err = s.Set("foo", "new")
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(ctx), errInjected)

	p, err = s.Delete("other")
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(ctx), errInjected)

	assert.True(t, s.Dirty())

	// not rolled back
	v, err := s.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	fb.fail.Store(false)

	require.NoError(t, s.Reload(ctx))
	assert.False(t, s.Dirty())

	v, err = s.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "old", v)
}

func TestSectionConcurrentWrites(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	path := testutil.DatabasePath(t)

	c := attachPath(t, path)
	s := getSection(t, c, "default")

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				// all goroutines race for the shared key
				_, err := s.Set("shared", fmt.Sprintf("%d-%d", i, j))
				assert.NoError(t, err)

				_, err = s.Set(fmt.Sprintf("key%d", i), j)
				assert.NoError(t, err)
			}
		}(i)
	}

	wg.Wait()

	require.NoError(t, c.Sync(ctx))

	expected, err := s.GetAll()
	require.NoError(t, err)
	assert.Len(t, expected, 11)

	require.NoError(t, c.Close())

	c = attachPath(t, path)

	actual, err := getSection(t, c, "default").GetAll()
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}
