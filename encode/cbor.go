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

package encode

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/hpcparcel/transport/parcel"
)

// wireParcel is the CBOR-encodable projection of a parcel - just enough to
// reconstruct payload and destination on the receiving side.
type wireParcel struct {
	ID      []byte `cbor:"1,keyasint"`
	Dest    string `cbor:"2,keyasint"`
	Payload []byte `cbor:"3,keyasint"`
}

// CBOREncoder packs parcels as a CBOR array, one wireParcel per element,
// stopping as soon as the next element would overflow buf.
type CBOREncoder struct {
	mode cbor.EncMode
}

// NewCBOREncoder builds the default wire Encoder.
func NewCBOREncoder() *CBOREncoder {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		// CanonicalEncOptions is a constant, known-good option set; this
		// can only fail if the cbor library itself is broken.
		panic(err)
	}
	return &CBOREncoder{mode: m}
}

// Encode implements Encoder. It reserves room for a CBOR array header sized
// for the full batch, then adds one marshaled parcel at a time, backing
// off the last one (and everything after it) the moment the running total
// would exceed len(buf), and finally writes the array of the n parcels that
// fit.
func (e *CBOREncoder) Encode(parcels []*parcel.Parcel, buf []byte) (n int, written int, err error) {
	if len(parcels) == 0 {
		return 0, 0, nil
	}

	encoded := make([]cbor.RawMessage, 0, len(parcels))
	total := 1
	switch c := len(parcels); {
	case c >= 1<<16:
		total = 5
	case c >= 1<<8:
		total = 3
	case c >= 24:
		total = 2
	}

	for _, p := range parcels {
		wp := wireParcel{ID: p.ID[:], Dest: p.Destination.Address, Payload: p.Payload}
		b, mErr := e.mode.Marshal(wp)
		if mErr != nil {
			return n, written, mErr
		}

		if total+len(b) > len(buf) {
			if n == 0 {
				// even the first parcel doesn't fit: buf is undersized for
				// this payload, not a normal partial-batch condition.
				return 0, 0, BufferTooSmall.Error()
			}
			// stop short; the unencoded tail goes back to the head of the
			// queue by the pipeline.
			break
		}

		encoded = append(encoded, b)
		total += len(b)
		n++
	}

	out, mErr := e.mode.Marshal(encoded)
	if mErr != nil {
		return 0, 0, mErr
	}

	return n, copy(buf, out), nil
}
