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

// Package encode declares the Encoder interface the send pipeline calls to
// pack pending parcels into a connection's wire buffer, plus a default
// CBOR-backed implementation.
package encode

import (
	"github.com/hpcparcel/transport/parcel"
)

// Encoder packs as many of the given parcels as fit into buf, returning how
// many were written. It is free to stop short when the next parcel would
// overflow buf; the pipeline re-enqueues whatever wasn't encoded at the head
// of the destination's queue, so an Encoder must never reorder or drop what
// it does encode.
type Encoder interface {
	// Encode writes parcels[0:n] (n <= len(parcels)) into buf in order,
	// returning n and the number of bytes written. When only part of the
	// batch fits, it returns no error and n < len(parcels) signals that;
	// when not even parcels[0] fits, it returns n == 0 and an error.
	Encode(parcels []*parcel.Parcel, buf []byte) (n int, written int, err error)
}
