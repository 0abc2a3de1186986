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
	"strings"
	"unicode/utf8"
)

// maxNameLength is the maximum length of section names and keys, in characters.
const maxNameLength = 63

// normalizeName returns a normalized section name or key.
//
// Surrounding whitespace is removed and the result is truncated to maxNameLength characters.
func normalizeName(name string) (string, error) {
	res := strings.TrimSpace(name)
	if res == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if utf8.RuneCountInString(res) > maxNameLength {
		res = string([]rune(res)[:maxNameLength])
	}

	return res, nil
}

// foldName returns the registry key for the given normalized section name.
//
// SQLite compares table names case-insensitively for ASCII letters only,
// so other characters are kept as is.
func foldName(name string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + 'a' - 'A'
		}

		return r
	}, name)
}
