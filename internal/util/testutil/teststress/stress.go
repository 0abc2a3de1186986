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

// Package teststress runs concurrent calls against the worker queue and section registry
// so that they all hit the shared state at once.
//
// It is in a separate package to avoid import cycles.
package teststress

import (
	"context"
	"runtime"
	"sync"
	"testing"
)

// NumGoroutines is the number of goroutines Stress starts.
//
// It is several times larger than GOMAXPROCS so that goroutines contend
// for the registry and queue locks even on small machines.
var NumGoroutines = runtime.GOMAXPROCS(-1) * 10

// Stress calls f in NumGoroutines goroutines and waits for all of them to return.
//
// Each call gets its index i in [0, NumGoroutines).
// f should prepare, send to ready, wait for start to be closed, and only then do the work under test.
// start is closed after every goroutine is ready,
// or after any of them exits early (for example, via require.XXX or tb.FailNow).
func Stress(tb testing.TB, f func(i int, ready chan<- struct{}, start <-chan struct{})) {
	tb.Helper()

	ready := make(chan struct{}, NumGoroutines)
	start := make(chan struct{})

	// canceled when some goroutine exits without finishing f
	aborted, abort := context.WithCancel(context.Background())
	tb.Cleanup(abort)

	var wg sync.WaitGroup
	wg.Add(NumGoroutines)

	for i := 0; i < NumGoroutines; i++ {
		i := i
		go func() {
			defer wg.Done()

			finished := false
			defer func() {
				if !finished {
					abort()
				}
			}()

			f(i, ready, start)
			finished = true
		}()
	}

	for i := 0; i < NumGoroutines; i++ {
		select {
		case <-ready:
		case <-aborted.Done():
		}
	}

	close(start)

	wg.Wait()
}
