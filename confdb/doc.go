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

// Package confdb provides a persistent, in-memory cached configuration store backed by SQLite.
//
// Configuration is organized as named sections.
// Each section is a mapping from string keys to JSON-serializable values stored in its own table.
//
// Usage:
//
//	c, err := confdb.Attach(ctx, "example.db", logger)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	section, err := confdb.GetStorage(c).Get(ctx, "default")
//	if err != nil {
//		return err
//	}
//
//	if _, err = section.Set("foo", "bar"); err != nil {
//		return err
//	}
//
//	v, err := section.Get("foo") // "bar"
//
// # Caching and persistence
//
// Every [Client] owns exactly one database connection and one worker goroutine.
// All operations that touch the database (opening it, listing, creating and dropping tables,
// loading, upserting and deleting rows) are queued and executed by that worker one at a time,
// in the order they were submitted.
//
// A [Section] loads all rows of its table into memory once, when [Storage] resolves it.
// After that, reads ([Section.Get], [Section.GetAll]) are answered from memory only.
// Writes ([Section.Set], [Section.Delete]) update memory immediately and queue the database write;
// they return a [Pending] handle that may be discarded or waited on.
// A subsequent read always observes the latest write, even if it was not written to the database yet.
//
// # Durability
//
// A write is durable only after its [Pending] is done without error.
// Writes still queued when the process exits are lost.
// Use [Client.Sync] or [Client.Close] to flush the queue.
//
// # Write failures
//
// A failed database write is not rolled back in memory.
// Instead, the error is logged, returned from [Pending.Wait],
// and the section is marked dirty (see [Section.Dirty]) until [Section.Reload]
// makes memory match the database again.
// Nothing is retried automatically.
package confdb
