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

// Package handler declares the connection-handler capability interface the
// port engine dispatches against. It never implements a wire protocol
// itself - see handler/tcp and handler/webrtc for concrete backends.
package handler

import (
	"github.com/hpcparcel/transport/parcel"
)

// WriteMode tells background_work which kind of progress to attempt.
type WriteMode uint8

const (
	// ModePending asks the handler to pump any queued sends.
	ModePending WriteMode = iota
	// ModeCompletion asks the handler to drain completion/ack queues.
	ModeCompletion
)

// Connection is a handle to a live transport channel to one locality. It is
// exclusively owned at any instant by whichever component currently holds
// it - the cache, the pipeline, or an in-flight write - and is never shared
// concurrently.
type Connection interface {
	// Locality is the destination this connection was created for.
	Locality() parcel.Locality

	// Buffer returns the connection's reusable send buffer, sized for at
	// most maxMessageSize bytes; the pipeline hands it to the encoder.
	Buffer(maxMessageSize int) []byte

	// WriteAsync issues an asynchronous write of n bytes already placed in
	// the buffer returned by Buffer, invoking done exactly once on
	// completion (nil error on success).
	WriteAsync(n int, done func(error))

	// Close tears the connection down; called by the cache when discarding
	// a failed connection.
	Close() error
}

// Capabilities is the runtime capability record carried by each concrete
// handler - a plain struct of booleans dispatched on at runtime, rather than
// compile-time polymorphism, so the pipeline can hold a single Handler
// reference regardless of backend.
type Capabilities struct {
	// SendEarlyParcel: handler supports send_early_parcel.
	SendEarlyParcel bool
	// SendImmediateParcels: handler exposes GetConnection/CanSendImmediate.
	SendImmediateParcels bool
	// DoBackgroundWork: handler wants BackgroundWork called each tick.
	DoBackgroundWork bool
}

// Handler is the fixed interface a connection-handler plugin implements.
// All methods gated by a Capabilities flag may be called only when that
// flag is set; callers check Capabilities() first.
type Handler interface {
	// Capabilities reports this handler's static capability record.
	Capabilities() Capabilities

	// GetLocalityName returns a human-readable name for this transport,
	// used in logs and the parcel.<handler-name> configuration namespace.
	GetLocalityName() string

	// DoRun starts the transport's background lifecycle (listeners, I/O
	// pumps). Returns false if startup failed.
	DoRun() bool
	// DoStop tears the transport down. Called once, from Port.Stop.
	DoStop()

	// CreateConnection constructs a new outbound connection to locality.
	CreateConnection(l parcel.Locality) (Connection, error)

	// GetConnection attempts to obtain a ready-to-send connection
	// non-blockingly. Only callable when SendImmediateParcels is set.
	GetConnection(l parcel.Locality) (Connection, bool)
	// ReclaimConnection returns a connection obtained via GetConnection.
	// Only callable when SendImmediateParcels is set.
	ReclaimConnection(c Connection)
	// CanSendImmediate reports whether the handler can accept a write right
	// now without blocking. Only callable when SendImmediateParcels is set.
	CanSendImmediate(l parcel.Locality) bool

	// BackgroundWork is invoked by the background driver's round-robin
	// schedule. Only callable when DoBackgroundWork is set. Returns true if
	// useful work was performed.
	BackgroundWork(numThread int, mode WriteMode) bool
}
