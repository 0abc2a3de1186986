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

import "context"

// Pending represents a queued database operation.
//
// It may be discarded: the operation is executed anyway.
// Wait on it to learn whether the operation was successful.
type Pending struct {
	done chan struct{}
	err  error
}

// newPending returns a new Pending that is not done yet.
func newPending() *Pending {
	return &Pending{
		done: make(chan struct{}),
	}
}

// resolve marks the operation done with the given result.
//
// It must be called exactly once.
func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done returns a channel that is closed when the operation is done.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the operation's error if it is done, or nil.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait waits for the operation to be done and returns its error.
//
// If ctx is canceled first, the context's error is returned;
// the operation itself is not canceled.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
