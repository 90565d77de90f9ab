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
	"github.com/hpcparcel/transport/cache"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/parcel"
)

// submitQueued is the queued-mode submit path: always enqueue first, then
// attempt to drive the destination.
func (p *Pipeline) submitQueued(l parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	p.queue.EnqueueBatch(l, ps, hs)
	p.driveQueued(l)
}

// driveQueued acquires a connection (creating one if only a reservation was
// granted), dequeues the destination's pending batch, and issues the write.
// A Full result or an empty dequeue (another thread drained it first)
// simply returns - a later reclaim naturally re-drives.
func (p *Pipeline) driveQueued(l parcel.Locality) {
	conn, result := p.cache.GetOrReserve(l)

	switch result {
	case cache.ResultFull:
		return
	case cache.ResultReserved:
		created, err := p.cache.CreateConnection(p.handler, l)
		if err != nil {
			p.cache.ReleaseReservation(l)
			if p.log != nil {
				p.log.Warning("create connection failed", nil, "locality", l.String(), "err", err)
			}
			return
		}
		conn = created
	}

	ps, hs, ok := p.queue.Dequeue(l)
	if !ok || len(ps) == 0 {
		p.cache.Reclaim(l, conn)
		return
	}

	buf := conn.Buffer(p.maxOutboundMessageSize)
	encoded, written, bundle, err := encodeBatch(p.encoder, buf, ps, hs)
	if err != nil {
		p.cache.Clear(l, conn)
		bundle = &completionBundle{parcels: ps, handlers: hs}
		bundle.invoke(err)
		return
	}

	if encoded < len(ps) {
		p.queue.EnqueueFront(l, ps[encoded:], hs[encoded:])
	}

	p.opsInFlight.Add(1)
	conn.WriteAsync(written, func(werr error) {
		p.completeQueued(l, conn, bundle, werr)
	})

	// Yield once after issuing a write to encourage adjacent producers to
	// coalesce into the next batch for this destination.
	yield()
}

func (p *Pipeline) completeQueued(l parcel.Locality, conn handler.Connection, bundle *completionBundle, err error) {
	p.opsInFlight.Add(-1)

	if err != nil {
		p.cache.Clear(l, conn)
	} else {
		p.cache.Reclaim(l, conn)
	}

	bundle.invoke(err)

	if p.hasPending(l) {
		go p.driveQueued(l)
	}
}
