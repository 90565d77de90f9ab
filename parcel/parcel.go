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

package parcel

import (
	"sync/atomic"

	"github.com/google/uuid"
)

var sequenceCounter uint64

// nextSequence hands out a monotonic, process-local sequence number used
// only for tracing/logging — never for ordering decisions, which remain the
// pipeline's responsibility.
func nextSequence() uint64 {
	return atomic.AddUint64(&sequenceCounter, 1)
}

// WriteHandler is the single-shot completion callback bound to exactly one
// Parcel. It is invoked exactly once, with a nil error on success.
// Implementations must not retain the Parcel after returning.
type WriteHandler func(err error, p *Parcel)

// Parcel is an opaque payload plus metadata, owned by the engine from the
// moment it is submitted until its WriteHandler fires. It is moved between
// components (queue, pipeline, connection), never copied.
type Parcel struct {
	// ID uniquely identifies this parcel for logging/tracing.
	ID uuid.UUID
	// Destination is the locality this parcel must be delivered to.
	Destination Locality
	// Payload is the already-serialized body; the engine never interprets it.
	Payload []byte

	seq uint64
}

// New builds a Parcel addressed to dest carrying payload. The caller retains
// no further claim on payload once the parcel is submitted.
func New(dest Locality, payload []byte) *Parcel {
	return &Parcel{
		ID:          uuid.New(),
		Destination: dest,
		Payload:     payload,
		seq:         nextSequence(),
	}
}

// Sequence returns the process-local monotonic sequence number assigned at
// construction, for logging and trace correlation only.
func (p *Parcel) Sequence() uint64 {
	return p.seq
}
