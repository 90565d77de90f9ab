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
	liberr "github.com/hpcparcel/transport/errors"
)

// Error kinds shared by every package in the engine. They are kinds, not
// concrete types: every raised error is a liberr.Error carrying one of these
// codes, optionally wrapping a transport-specific parent error.
const (
	// BadParameter: invalid call arguments - mismatched parcel/handler
	// vector lengths, or a batch parcel whose Address differs from the batch
	// destination. The locality Type tag is not checked. Raised synchronously.
	BadParameter = liberr.CodeError(liberr.MinPkgParcel + iota)
	// NetworkError: unsupported operation for a handler, connection
	// creation failure, or a write failure surfaced via completion.
	NetworkError
	// OutOfMemory: transport-level allocation failure.
	OutOfMemory
	// KernelError: failure surfaced from an underlying device/OS call.
	KernelError
	// ShutdownError: delivered to handlers of parcels still pending at stop.
	ShutdownError
)

func init() {
	liberr.RegisterIdFctMessage(BadParameter, messages)
}

func messages(code liberr.CodeError) string {
	switch code {
	case BadParameter:
		return "bad parameter"
	case NetworkError:
		return "network error"
	case OutOfMemory:
		return "out of memory"
	case KernelError:
		return "kernel error"
	case ShutdownError:
		return "port is shutting down"
	default:
		return liberr.NullMessage
	}
}
