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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/backend/sqlite"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// Parts of Prometheus metric names.
const (
	namespace = "confdb"
	subsystem = "client"
)

// jobFunc is a function executed by the client's worker.
//
// It gets the job's context and the open backend.
type jobFunc func(ctx context.Context, b backend.Backend) error

// job is a queued unit of work.
type job struct {
	ctx context.Context
	op  string
	f   jobFunc
	p   *Pending
}

// openFunc opens a backend.
type openFunc func(ctx context.Context, l *zap.Logger) (backend.Backend, error)

// Client represents a single database connection and the single worker that uses it.
//
// All database operations are executed by the worker one at a time, in submission order.
// Client is safe for concurrent use.
type Client struct {
	id     string
	l      *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	// only accessed by the worker
	b backend.Backend

	mu        sync.Mutex
	cond      *sync.Cond
	jobs      []*job
	closed    bool
	collector prometheus.Collector // backend's collector, if any

	done     chan struct{} // closed when the worker exits
	closeErr error         // set by the worker before done is closed

	queueLength *prometheus.Desc
	ops         *prometheus.CounterVec
}

// Attach opens the SQLite database at the given locator and returns a new client.
//
// The locator is a file path or a file: URI.
// The database file is created if it does not exist.
// Attach waits for the database to be opened;
// on failure it returns an error matching ErrConnection.
//
// If l is nil, nothing is logged.
func Attach(ctx context.Context, locator string, l *zap.Logger) (*Client, error) {
	return attach(ctx, l, func(ctx context.Context, l *zap.Logger) (backend.Backend, error) {
		return sqlite.Open(ctx, locator, l.Named("sqlite"))
	})
}

// attach returns a new client using the given function to open the backend.
func attach(ctx context.Context, l *zap.Logger, open openFunc) (*Client, error) {
	if l == nil {
		l = zap.NewNop()
	}

	id := uuid.NewString()

	c := &Client{
		id:     id,
		l:      l.Named("confdb").With(zap.String("client", id)),
		tracer: otel.Tracer("github.com/FerretDB/confdb/confdb"),
		now: func() time.Time {
			return time.Now().UTC()
		},
		done: make(chan struct{}),
		queueLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "queue_length"),
			"The number of queued jobs.",
			nil,
			prometheus.Labels{"client": id},
		),
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "ops_total",
				Help:        "The total number of executed jobs.",
				ConstLabels: prometheus.Labels{"client": id},
			},
			[]string{"op", "result"},
		),
	}
	c.cond = sync.NewCond(&c.mu)

	go c.worker()

	p := c.run(ctx, "attach", func(ctx context.Context, _ backend.Backend) error {
		b, err := open(ctx, c.l)
		if err != nil {
			return err
		}

		c.b = backend.BackendContract(b)

		if coll, ok := b.(prometheus.Collector); ok {
			c.mu.Lock()
			c.collector = coll
			c.mu.Unlock()
		}

		return nil
	})

	if err := p.Wait(ctx); err != nil {
		_ = c.Close()

		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}

		return nil, err
	}

	c.l.Info("Client attached.")

	return c, nil
}

// run queues a job and returns its Pending handle.
//
// It never blocks. If the client is closed, the returned Pending is already done with ErrClosed.
func (c *Client) run(ctx context.Context, op string, f jobFunc) *Pending {
	p := newPending()

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		p.resolve(ErrClosed)

		return p
	}

	c.jobs = append(c.jobs, &job{
		ctx: ctx,
		op:  op,
		f:   f,
		p:   p,
	})

	c.mu.Unlock()
	c.cond.Signal()

	return p
}

// next waits for the next job and removes it from the queue.
//
// It returns nil when the client is closed and the queue is empty.
func (c *Client) next() *job {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.jobs) == 0 && !c.closed {
		c.cond.Wait()
	}

	if len(c.jobs) == 0 {
		return nil
	}

	j := c.jobs[0]
	c.jobs[0] = nil
	c.jobs = c.jobs[1:]

	return j
}

// worker executes queued jobs until the client is closed and the queue is drained,
// then closes the backend.
func (c *Client) worker() {
	defer close(c.done)

	for {
		j := c.next()
		if j == nil {
			break
		}

		c.exec(j)
	}

	if c.b == nil {
		return
	}

	if err := c.b.Close(); err != nil {
		c.l.Error("Failed to close backend.", zap.Error(err))
		c.closeErr = lazyerrors.Error(err)
	}
}

// exec executes a single job and resolves its Pending.
func (c *Client) exec(j *job) {
	if err := j.ctx.Err(); err != nil {
		c.ops.WithLabelValues(j.op, "canceled").Inc()
		j.p.resolve(err)

		return
	}

	if c.b == nil && j.op != "attach" {
		c.ops.WithLabelValues(j.op, "error").Inc()
		j.p.resolve(ErrClosed)

		return
	}

	ctx, span := c.tracer.Start(j.ctx, "confdb."+j.op, trace.WithAttributes(
		attribute.String("confdb.client", c.id),
	))

	start := time.Now()
	err := j.f(ctx, c.b)

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()

	c.ops.WithLabelValues(j.op, result).Inc()
	c.l.Debug(
		"Job finished.",
		zap.String("op", j.op), zap.Duration("time", time.Since(start)), zap.Error(err),
	)

	j.p.resolve(err)
}

// Sync waits until every operation submitted before the call is done.
func (c *Client) Sync(ctx context.Context) error {
	return c.run(ctx, "sync", func(context.Context, backend.Backend) error {
		return nil
	}).Wait(ctx)
}

// Close stops accepting new operations, waits for queued operations to be done,
// and closes the database.
//
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.cond.Broadcast()

	<-c.done

	if !wasClosed {
		c.l.Info("Client closed.")
	}

	return c.closeErr
}

// Describe implements prometheus.Collector.
func (c *Client) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueLength

	c.ops.Describe(ch)

	c.mu.Lock()
	coll := c.collector
	c.mu.Unlock()

	if coll != nil {
		coll.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Client) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	l := len(c.jobs)
	coll := c.collector
	c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(l))

	c.ops.Collect(ch)

	if coll != nil {
		coll.Collect(ch)
	}
}

// check interfaces
var (
	_ prometheus.Collector = (*Client)(nil)
)
