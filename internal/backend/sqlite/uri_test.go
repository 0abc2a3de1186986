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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	t.Parallel()

	const pragmas = "_pragma=journal_mode%28wal%29&_pragma=busy_timeout%285000%29"

	testCases := map[string]struct {
		in  string
		out string
		err string
	}{
		"RelativePath": {
			in:  "example.db",
			out: "file:example.db?" + pragmas,
		},
		"AbsolutePath": {
			in:  "/var/lib/app/config.db",
			out: "file:/var/lib/app/config.db?" + pragmas,
		},
		"OpaqueURI": {
			in:  "file:data/config.db",
			out: "file:data/config.db?" + pragmas,
		},
		"AbsoluteURI": {
			in:  "file:///tmp/config.db",
			out: "file:/tmp/config.db?" + pragmas,
		},
		"QueryParameters": {
			in:  "file:config.db?mode=memory",
			out: "file:config.db?" + pragmas + "&mode=memory",
		},
		"ExplicitJournalMode": {
			in:  "file:config.db?_pragma=journal_mode(delete)",
			out: "file:config.db?_pragma=journal_mode%28delete%29&_pragma=busy_timeout%285000%29",
		},
		"Empty": {
			in:  "",
			err: "empty locator",
		},
		"EmptyPath": {
			in:  "file:?mode=memory",
			err: "empty path",
		},
		"Host": {
			in:  "file://localhost/tmp/config.db",
			err: `expected empty host, got "localhost"`,
		},
		"Network": {
			in:  "postgres://127.0.0.1:5432/config",
			err: "only local files are supported",
		},
	}

	for name, tc := range testCases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out, err := parseLocator(tc.in)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.out, out)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"default"`, quoteIdent("default"))
	assert.Equal(t, `"say ""hi"""`, quoteIdent(`say "hi"`))
}
