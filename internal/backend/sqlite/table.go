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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FerretDB/confdb/internal/backend"
	"github.com/FerretDB/confdb/internal/util/fsql"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// timeLayout is used to store timestamps as text.
const timeLayout = time.RFC3339Nano

// table implements backend.Table interface.
type table struct {
	db   *fsql.DB
	l    *zap.Logger
	name string
}

// Name implements backend.Table interface.
func (t *table) Name() string {
	return t.name
}

// Scan implements backend.Table interface.
func (t *table) Scan(ctx context.Context) ([]backend.Row, error) {
	q := fmt.Sprintf("SELECT key, value, created_at, updated_at FROM %s ORDER BY key", quoteIdent(t.name))

	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	var res []backend.Row

	for rows.Next() {
		var row backend.Row
		var createdAt sql.NullString
		var updatedAt string

		if err = rows.Scan(&row.Key, &row.Value, &createdAt, &updatedAt); err != nil {
			return nil, lazyerrors.Error(err)
		}

		if createdAt.Valid {
			if row.CreatedAt, err = time.Parse(timeLayout, createdAt.String); err != nil {
				return nil, lazyerrors.Errorf("%s.%s: created_at: %w", t.name, row.Key, err)
			}
		}

		if row.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, lazyerrors.Errorf("%s.%s: updated_at: %w", t.name, row.Key, err)
		}

		res = append(res, row)
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// Upsert implements backend.Table interface.
func (t *table) Upsert(ctx context.Context, row backend.Row) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (key, value, created_at, updated_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		quoteIdent(t.name),
	)

	var createdAt any
	if !row.CreatedAt.IsZero() {
		createdAt = row.CreatedAt.UTC().Format(timeLayout)
	}

	updatedAt := row.UpdatedAt.UTC().Format(timeLayout)

	if _, err := t.db.ExecContext(ctx, q, row.Key, row.Value, createdAt, updatedAt); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Delete implements backend.Table interface.
func (t *table) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE key = ?", quoteIdent(t.name))

	if _, err := t.db.ExecContext(ctx, q, key); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Drop implements backend.Table interface.
func (t *table) Drop(ctx context.Context) error {
	q := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(t.name))

	if _, err := t.db.ExecContext(ctx, q); err != nil {
		return lazyerrors.Error(err)
	}

	t.l.Debug("Table dropped.", zap.String("table", t.name))

	return nil
}

// check interfaces
var (
	_ backend.Table = (*table)(nil)
)
