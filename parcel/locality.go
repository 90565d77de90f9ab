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

// Package parcel holds the data model shared by every other package in this
// module: the destination identifier (Locality), the unit of transport
// (Parcel), and the single-shot completion callback (WriteHandler) bound to
// it.
package parcel

import (
	"fmt"

	"github.com/google/uuid"
)

// Locality is an opaque, totally ordered, hashable destination identifier.
// Two Localities are equal iff their wire Address matches; the Type tag
// (e.g. "tcp", "webrtc") travels alongside for handler dispatch but does not
// participate in equality or ordering, mirroring a single logical peer
// reachable over exactly one transport at a time.
type Locality struct {
	// Address is the canonical wire address of the peer (host:port, a
	// webrtc session id, ...). It alone determines equality.
	Address string
	// Type names the transport this locality was registered under.
	Type string

	hash uuid.UUID
}

// NewLocality builds a Locality, deriving its stable hash once so it can be
// used as a comparable map/LRU key without re-hashing the address string on
// every cache lookup.
func NewLocality(address, transportType string) Locality {
	return Locality{
		Address: address,
		Type:    transportType,
		hash:    uuid.NewSHA1(uuid.Nil, []byte(address)),
	}
}

// Key returns the comparable key used by the connection cache and its LRU
// lists. It depends only on Address, per the equality rule above.
func (l Locality) Key() uuid.UUID {
	return l.hash
}

// String implements fmt.Stringer for logging.
func (l Locality) String() string {
	return fmt.Sprintf("%s://%s", l.Type, l.Address)
}

// Less gives Locality a total order (by Address, then Type), used only to
// make LRU tie-breaks and test output deterministic — it carries no
// transport meaning.
func (l Locality) Less(o Locality) bool {
	if l.Address != o.Address {
		return l.Address < o.Address
	}
	return l.Type < o.Type
}

// Equal reports whether two localities name the same peer.
func (l Locality) Equal(o Locality) bool {
	return l.Address == o.Address
}
