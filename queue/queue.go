/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package queue implements the Pending Queue: a per-destination staging area
// holding parcels plus their completion handlers while they wait for a free
// connection. A single mutex guards the map, the destination set, and the
// atomic destination count; Dequeue and DrainAll hand a batch over by
// pointer swap without copying it, and the handler is never invoked while
// the lock is held.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hpcparcel/transport/parcel"
)

// Entry pairs one parcel with its completion handler.
type Entry struct {
	Parcel  *parcel.Parcel
	Handler parcel.WriteHandler
}

type bucket struct {
	parcels  []*parcel.Parcel
	handlers []parcel.WriteHandler
}

func (b *bucket) empty() bool {
	return b == nil || len(b.parcels) == 0
}

// Queue is the Pending Queue. The zero value is not usable; use New.
type Queue struct {
	mu    sync.Mutex
	m     map[uuid.UUID]*bucket
	keyOf map[uuid.UUID]parcel.Locality
	count atomic.Int64
}

// New returns an empty Queue ready for use.
func New() *Queue {
	return &Queue{
		m:     make(map[uuid.UUID]*bucket),
		keyOf: make(map[uuid.UUID]parcel.Locality),
	}
}

// Enqueue appends a single (parcel, handler) pair to locality's batch.
func (q *Queue) Enqueue(l parcel.Locality, p *parcel.Parcel, h parcel.WriteHandler) {
	q.EnqueueBatch(l, []*parcel.Parcel{p}, []parcel.WriteHandler{h})
}

// EnqueueBatch appends a batch of (parcel, handler) pairs, all addressed to
// locality, preserving submission order.
func (q *Queue) EnqueueBatch(l parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	if len(ps) == 0 {
		return
	}

	k := l.Key()

	q.mu.Lock()
	b, ok := q.m[k]
	if !ok {
		b = &bucket{}
		q.m[k] = b
		q.keyOf[k] = l
		q.count.Add(1)
	}
	b.parcels = append(b.parcels, ps...)
	b.handlers = append(b.handlers, hs...)
	q.mu.Unlock()
}

// EnqueueFront re-inserts a batch at the head of locality's queue, used by
// the pipeline to preserve intra-batch order when an encoder partially
// encodes a submitted batch.
func (q *Queue) EnqueueFront(l parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	if len(ps) == 0 {
		return
	}

	k := l.Key()

	q.mu.Lock()
	b, ok := q.m[k]
	if !ok {
		b = &bucket{}
		q.m[k] = b
		q.keyOf[k] = l
		q.count.Add(1)
	}
	b.parcels = append(append([]*parcel.Parcel{}, ps...), b.parcels...)
	b.handlers = append(append([]parcel.WriteHandler{}, hs...), b.handlers...)
	q.mu.Unlock()
}

// Dequeue atomically moves the entire queued batch for locality into the
// returned slices. ok is false if the queue was empty or momentarily
// contended (try-lock semantics) - callers must treat false as "try again
// later", never as an error.
func (q *Queue) Dequeue(l parcel.Locality) (ps []*parcel.Parcel, hs []parcel.WriteHandler, ok bool) {
	if !q.mu.TryLock() {
		return nil, nil, false
	}
	defer q.mu.Unlock()

	k := l.Key()
	b, exists := q.m[k]
	if b.empty() {
		return nil, nil, false
	}

	ps, hs = b.parcels, b.handlers
	delete(q.m, k)
	delete(q.keyOf, k)
	if exists {
		q.count.Add(-1)
	}
	return ps, hs, true
}

// DequeueAny removes a single parcel from any one non-empty destination, used
// by the background driver to make a forward-progress guarantee even when a
// destination-targeted drain is contended.
func (q *Queue) DequeueAny() (l parcel.Locality, p *parcel.Parcel, h parcel.WriteHandler, ok bool) {
	if !q.mu.TryLock() {
		return parcel.Locality{}, nil, nil, false
	}
	defer q.mu.Unlock()

	for k, b := range q.m {
		if b.empty() {
			continue
		}

		p, h = b.parcels[0], b.handlers[0]
		b.parcels = b.parcels[1:]
		b.handlers = b.handlers[1:]

		l = q.keyOf[k]
		if b.empty() {
			delete(q.m, k)
			delete(q.keyOf, k)
			q.count.Add(-1)
		}
		return l, p, h, true
	}

	return parcel.Locality{}, nil, nil, false
}

// SnapshotDestinations returns a best-effort copy of the destination set
// under try-lock. An empty, ok=false result means the lock was contended;
// callers should simply skip this tick rather than treat it as "no work".
func (q *Queue) SnapshotDestinations() (dest []parcel.Locality, ok bool) {
	if !q.mu.TryLock() {
		return nil, false
	}
	defer q.mu.Unlock()

	dest = make([]parcel.Locality, 0, len(q.keyOf))
	for _, l := range q.keyOf {
		dest = append(dest, l)
	}
	return dest, true
}

// DestinationCount returns the atomic count of non-empty destinations,
// usable as a lock-free fast-path check.
func (q *Queue) DestinationCount() int64 {
	return q.count.Load()
}

// DrainAll empties the entire queue, invoking fn(locality, parcel, handler)
// for every entry still pending. Used by Port.Stop to deliver ShutdownError
// to every handler still waiting for a connection.
func (q *Queue) DrainAll(fn func(parcel.Locality, *parcel.Parcel, parcel.WriteHandler)) {
	q.mu.Lock()
	m := q.m
	keyOf := q.keyOf
	q.m = make(map[uuid.UUID]*bucket)
	q.keyOf = make(map[uuid.UUID]parcel.Locality)
	q.count.Store(0)
	q.mu.Unlock()

	for k, b := range m {
		l := keyOf[k]
		for i := range b.parcels {
			fn(l, b.parcels[i], b.handlers[i])
		}
	}
}
