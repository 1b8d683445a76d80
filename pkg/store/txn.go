/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
)

// Txn is a single logical write transaction. Object writes made through
// the Store while a Txn is open are already content-addressed and
// durable on write; what a Txn actually guards is the atomicity of
// reference changes and the single-writer
// invariant via an advisory OS file lock, so the rule holds
// across separate processes pointed at the same store directory, not
// just goroutines in one. mu guards pending itself: callers may stage ref
// updates from multiple goroutines, e.g. an errgroup fetching several
// component layers into the same transaction concurrently.
type Txn struct {
	store   *Store
	id      uuid.UUID
	mu      sync.Mutex
	pending map[string]*digestx.Digest // nil value means "unset"
	done    bool
}

// BeginTransaction acquires the store's write lock and returns a new Txn.
// ctx governs how long the caller is willing to wait for a concurrent
// transaction (in this or another process) to finish.
func (s *Store) BeginTransaction(ctx context.Context) (*Txn, error) {
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire store transaction lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store transaction lock held by another writer")
	}

	return &Txn{
		store:   s,
		id:      uuid.New(),
		pending: make(map[string]*digestx.Digest),
	}, nil
}

// ID returns the transaction's identifier. Commit includes it in the
// error it returns when applying reference changes fails.
func (t *Txn) ID() uuid.UUID {
	return t.id
}

// Store returns the object store this transaction writes through. Object
// writes are content-addressed and durable immediately; only reference
// changes wait for Commit.
func (t *Txn) Store() ObjectStore {
	return t.store
}

// SetRef stages a reference update. digest == "" unsets the reference.
// The change is not visible to ResolveRef until Commit.
func (t *Txn) SetRef(name string, digest digestx.Digest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if digest == "" {
		t.pending[name] = nil
		return
	}
	d := digest
	t.pending[name] = &d
}

// Commit atomically applies all staged reference changes and releases
// the transaction lock. Calling Commit or Abort a second time is a no-op.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer func() { _ = t.store.lock.Unlock() }()

	if err := t.store.applyRefs(t.pending); err != nil {
		return fmt.Errorf("commit transaction %s: %w", t.id, err)
	}
	return nil
}

// Abort discards all staged reference changes and releases the
// transaction lock. Objects already written to the store during the
// transaction remain,
// simply unreferenced until some other commit points at them.
func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.store.lock.Unlock()
}
