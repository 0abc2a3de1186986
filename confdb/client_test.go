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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	otelsdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/FerretDB/confdb/internal/backend"
	tu "github.com/FerretDB/confdb/internal/util/testutil"
)

func TestAttach(t *testing.T) {
	t.Parallel()

	t.Run("File", func(t *testing.T) {
		t.Parallel()

		path := tu.DatabasePath(t)

		c, err := Attach(tu.Ctx(t), path, nil)
		require.NoError(t, err)
		require.NoError(t, c.Close())

		assert.FileExists(t, path)
	})

	for name, tc := range map[string]struct {
		locator func(t *testing.T) string
	}{
		"Network": {
			locator: func(*testing.T) string { return "https://example.com/config.db" },
		},
		"Empty": {
			locator: func(*testing.T) string { return "" },
		},
		"MissingDirectory": {
			locator: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing", "config.db") },
		},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c, err := Attach(tu.Ctx(t), tc.locator(t), tu.Logger(t))
			assert.ErrorIs(t, err, ErrConnection)
			assert.Nil(t, c)
		})
	}

	t.Run("Canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(tu.Ctx(t))
		cancel()

		c, err := Attach(ctx, tu.DatabasePath(t), tu.Logger(t))
		assert.ErrorIs(t, err, ErrConnection)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, c)
	})
}

func TestClientOrder(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)
	c := setup(t)

	var order []int

	pendings := make([]*Pending, 100)
	for i := range pendings {
		i := i
		pendings[i] = c.run(ctx, "test", func(context.Context, backend.Backend) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, c.Sync(ctx))

	for i, p := range pendings {
		require.NoError(t, p.Err(), "%d", i)
		assert.Equal(t, i, order[i])
	}

	assert.Len(t, order, len(pendings))
}

func TestClientClose(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)
	path := tu.DatabasePath(t)

	c, err := Attach(ctx, path, tu.Logger(t))
	require.NoError(t, err)

	s, err := GetStorage(c).Get(ctx, "default")
	require.NoError(t, err)

	var last *Pending

	for i := 0; i < 100; i++ {
		last, err = s.Set(fmt.Sprintf("key%d", i), i)
		require.NoError(t, err)
	}

	// queued writes are drained
	require.NoError(t, c.Close())

	select {
	case <-last.Done():
	default:
		t.Fatal("write is not done after Close")
	}

	require.NoError(t, last.Err())

	require.NoError(t, c.Close(), "second Close")

	p, err := s.Set("after", true)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(ctx), ErrClosed)

	assert.ErrorIs(t, c.Sync(ctx), ErrClosed)

	_, err = GetStorage(c).Get(ctx, "other")
	assert.ErrorIs(t, err, ErrClosed)

	c = attachPath(t, path)
	all, err := getSection(t, c, "default").GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 100)
	assert.Equal(t, float64(99), all["key99"])
	assert.NotContains(t, all, "after")
}

func TestPending(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)
	c := setup(t)

	block := make(chan struct{})

	p := c.run(ctx, "test", func(context.Context, backend.Backend) error {
		<-block
		return errInjected
	})

	assert.NoError(t, p.Err(), "not done yet")

	waitCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Wait(waitCtx), context.Canceled)

	close(block)

	assert.ErrorIs(t, p.Wait(ctx), errInjected)
	assert.ErrorIs(t, p.Err(), errInjected)
}

func TestClientMetrics(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)
	c := setup(t)

	require.NoError(t, c.Sync(ctx))
	require.NoError(t, c.Sync(ctx))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.ops.WithLabelValues("attach", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.ops.WithLabelValues("sync", "ok")))

	assert.Equal(t, 1, testutil.CollectAndCount(c, "confdb_client_queue_length"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "confdb_sqldb_open"))

	problems, err := testutil.CollectAndLint(c)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

// TestClientTracing is not parallel because it changes the global tracer provider.
func TestClientTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(otelsdktrace.NewTracerProvider(otelsdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx := tu.Ctx(t)
	c := setup(t)
	s := getSection(t, c, "default")

	p, err := s.Set("foo", 1)
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	var names []string
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
	}

	assert.Equal(t, []string{"confdb.attach", "confdb.load", "confdb.set"}, names)
}
