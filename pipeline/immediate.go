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

package pipeline

import (
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/parcel"
)

// submitImmediate is the send-immediate-mode submit path for a batch the
// caller handed in directly.
func (p *Pipeline) submitImmediate(l parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	conn, ok := p.handler.GetConnection(l)
	if !ok {
		p.queue.EnqueueBatch(l, ps, hs)
		return
	}
	p.sendImmediateOn(l, conn, ps, hs)
}

// driveImmediate is submitImmediate's re-drive counterpart: it has no
// caller-supplied batch, so it dequeues whatever is pending for l.
func (p *Pipeline) driveImmediate(l parcel.Locality) {
	conn, ok := p.handler.GetConnection(l)
	if !ok {
		return
	}

	ps, hs, ok := p.queue.Dequeue(l)
	if !ok || len(ps) == 0 {
		p.handler.ReclaimConnection(conn)
		return
	}

	p.sendImmediateOn(l, conn, ps, hs)
}

// sendImmediateOn encodes as much of (ps, hs) as fits on conn's buffer,
// issues the async write, re-enqueues at the head whatever didn't fit (the
// partial-encoding rule), and reclaims conn to the handler on completion.
func (p *Pipeline) sendImmediateOn(l parcel.Locality, conn handler.Connection, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	buf := conn.Buffer(p.maxOutboundMessageSize)

	encoded, written, bundle, err := encodeBatch(p.encoder, buf, ps, hs)
	if err != nil {
		p.handler.ReclaimConnection(conn)
		bundle = &completionBundle{parcels: ps, handlers: hs}
		bundle.invoke(err)
		return
	}

	if encoded < len(ps) {
		p.queue.EnqueueFront(l, ps[encoded:], hs[encoded:])
	}

	p.opsInFlight.Add(1)
	conn.WriteAsync(written, func(werr error) {
		p.completeImmediate(l, conn, bundle, werr)
	})
}

func (p *Pipeline) completeImmediate(l parcel.Locality, conn handler.Connection, bundle *completionBundle, err error) {
	p.opsInFlight.Add(-1)
	p.handler.ReclaimConnection(conn)
	bundle.invoke(err)

	if p.queue.DestinationCount() > 0 && p.hasPending(l) {
		go p.driveImmediate(l)
	}
}

// hasPending is a cheap best-effort check so the trampoline doesn't spawn a
// goroutine for every completion when the destination queue is empty.
func (p *Pipeline) hasPending(l parcel.Locality) bool {
	dest, ok := p.queue.SnapshotDestinations()
	if !ok {
		return true // contended: be conservative, retry
	}
	for _, d := range dest {
		if d.Equal(l) {
			return true
		}
	}
	return false
}
