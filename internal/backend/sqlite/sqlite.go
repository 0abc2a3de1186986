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

// Package sqlite provides SQLite implementation of the backend contract.
//
// # Design
//
// Each configuration section is stored in its own table with the following columns:
//
//	key        TEXT PRIMARY KEY
//	value      TEXT NOT NULL  -- JSON
//	created_at TEXT           -- RFC 3339 with nanoseconds, UTC; NULL if unknown
//	updated_at TEXT NOT NULL  -- RFC 3339 with nanoseconds, UTC
//
// The database is opened with exactly one connection.
// The connection is not shared: the caller must serialize all calls.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register database/sql driver

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/util/fsql"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// This prefix is reserved by SQLite for internal use,
// see https://www.sqlite.org/lang_createtable.html.
const reservedTablePrefix = "sqlite_"

// Pragmas added to every connection URI unless they are already present.
var defaultPragmas = []string{
	"journal_mode(wal)",
	"busy_timeout(5000)",
}

// Backend implements backend.Backend interface for SQLite.
type Backend struct {
	db *fsql.DB
	l  *zap.Logger
}

// Open opens the SQLite database specified by the locator.
//
// Locator is either a file path ("example.db", "/var/lib/app/config.db")
// or a SQLite URI with "file:" scheme ("file:config.db?mode=memory").
// The database file is created if it does not exist.
//
// Returned errors wrap [backend.ErrConnection].
func Open(ctx context.Context, locator string, l *zap.Logger) (*Backend, error) {
	uri, err := parseLocator(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", backend.ErrConnection, locator, err)
	}

	sqlDB, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrConnection, lazyerrors.Error(err))
	}

	// the connection is never shared between goroutines and must stay open for in-memory databases
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	db := fsql.WrapDB(sqlDB, "sqlite", l)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %q: %s", backend.ErrConnection, locator, lazyerrors.Error(err))
	}

	var version, journal string
	if err = db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %q: %s", backend.ErrConnection, locator, lazyerrors.Error(err))
	}

	if err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %q: %s", backend.ErrConnection, locator, lazyerrors.Error(err))
	}

	l.Debug(
		"Database opened.",
		zap.String("uri", uri), zap.String("version", version), zap.String("journal_mode", journal),
	)

	return &Backend{
		db: db,
		l:  l,
	}, nil
}

// parseLocator returns SQLite URI for the given locator.
//
// Returned URI has "file:" scheme, contains path in the opaque part,
// and has default pragmas added to query parameters.
func parseLocator(locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("empty locator")
	}

	var uri *url.URL

	switch {
	case strings.HasPrefix(locator, "file:"):
		var err error
		if uri, err = url.Parse(locator); err != nil {
			return "", err
		}

		if uri.User != nil {
			return "", fmt.Errorf("expected empty user info, got %q", uri.User)
		}

		if uri.Host != "" {
			return "", fmt.Errorf("expected empty host, got %q", uri.Host)
		}

		if uri.Path == "" && uri.Opaque != "" {
			uri.Path = uri.Opaque
		}

	case strings.Contains(locator, "://"):
		return "", fmt.Errorf("only local files are supported")

	default:
		uri = &url.URL{
			Scheme: "file",
			Path:   locator,
		}
	}

	if uri.Path == "" {
		return "", fmt.Errorf("empty path")
	}

	uri.Opaque = uri.Path

	q := uri.Query()

	for _, p := range defaultPragmas {
		name := p[:strings.IndexByte(p, '(')]

		var found bool

		for _, v := range q["_pragma"] {
			if strings.HasPrefix(strings.ToLower(v), name) {
				found = true
				break
			}
		}

		if !found {
			q.Add("_pragma", p)
		}
	}

	uri.RawQuery = q.Encode()

	return uri.String(), nil
}

// quoteIdent returns SQLite identifier quoted with double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Tables implements backend.Backend interface.
func (b *Backend) Tables(ctx context.Context) ([]string, error) {
	q := `SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`

	rows, err := b.db.QueryContext(ctx, q)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	var res []string

	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, lazyerrors.Error(err)
		}

		res = append(res, name)
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// CreateTable implements backend.Backend interface.
func (b *Backend) CreateTable(ctx context.Context, name string) error {
	if strings.HasPrefix(strings.ToLower(name), reservedTablePrefix) {
		return fmt.Errorf("%w: %q uses reserved prefix %q", backend.ErrInvalidTableName, name, reservedTablePrefix)
	}

	q := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"key TEXT PRIMARY KEY NOT NULL, "+
			"value TEXT NOT NULL, "+
			"created_at TEXT, "+
			"updated_at TEXT NOT NULL"+
			") STRICT",
		quoteIdent(name),
	)

	if _, err := b.db.ExecContext(ctx, q); err != nil {
		return lazyerrors.Error(err)
	}

	b.l.Debug("Table created.", zap.String("table", name))

	return nil
}

// Table implements backend.Backend interface.
func (b *Backend) Table(name string) backend.Table {
	return &table{
		db:   b.db,
		l:    b.l,
		name: name,
	}
}

// Close implements backend.Backend interface.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return lazyerrors.Error(err)
	}

	b.l.Debug("Database closed.")

	return nil
}

// Describe implements prometheus.Collector.
func (b *Backend) Describe(ch chan<- *prometheus.Desc) {
	b.db.Describe(ch)
}

// Collect implements prometheus.Collector.
func (b *Backend) Collect(ch chan<- prometheus.Metric) {
	b.db.Collect(ch)
}

// check interfaces
var (
	_ backend.Backend      = (*Backend)(nil)
	_ prometheus.Collector = (*Backend)(nil)
)
