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

// Package pipeline implements the Send Pipeline: it pairs pending parcels
// with connections, invokes the encoder, issues asynchronous writes, and
// handles completion. This is the orchestration heart of the engine; cache,
// queue, and encode hold the state it orchestrates.
package pipeline

import (
	"runtime"
	"sync/atomic"

	"github.com/hpcparcel/transport/cache"
	"github.com/hpcparcel/transport/encode"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
	"github.com/hpcparcel/transport/queue"
)

// Pipeline orchestrates one connection-handler's traffic. A Port owns
// exactly one Pipeline per handler.
type Pipeline struct {
	handler handler.Handler
	cache   *cache.Cache
	queue   *queue.Queue
	encoder encode.Encoder
	log     logger.Logger

	maxOutboundMessageSize int

	opsInFlight atomic.Int64
}

// Config configures a Pipeline.
type Config struct {
	Handler                handler.Handler
	Cache                   *cache.Cache
	Queue                   *queue.Queue
	Encoder                 encode.Encoder
	MaxOutboundMessageSize  int
	Logger                  logger.Logger
}

// New builds a Pipeline wired to the given handler, cache, queue, and encoder.
func New(cfg Config) *Pipeline {
	size := cfg.MaxOutboundMessageSize
	if size <= 0 {
		size = 64 * 1024
	}
	return &Pipeline{
		handler:                cfg.Handler,
		cache:                  cfg.Cache,
		queue:                  cfg.Queue,
		encoder:                cfg.Encoder,
		log:                    cfg.Logger,
		maxOutboundMessageSize: size,
	}
}

// OperationsInFlight returns the number of async writes issued but not yet
// completed, used by Port.Flush to gate quiescence.
func (p *Pipeline) OperationsInFlight() int64 {
	return p.opsInFlight.Load()
}

// Submit is the pipeline's entry point for put_parcel/put_parcels: it routes
// to the send-immediate or queued flow depending on the handler's
// capabilities.
func (p *Pipeline) Submit(l parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) {
	if p.handler.Capabilities().SendImmediateParcels {
		p.submitImmediate(l, ps, hs)
		return
	}
	p.submitQueued(l, ps, hs)
}

// Drive re-attempts delivery for a destination with no newly submitted
// parcels - used by the background driver's trigger_pending_work step (the
// completion trampolines re-drive through driveQueued/driveImmediate
// directly). It dequeues whatever is pending and
// pushes it through the same flow Submit would have used.
func (p *Pipeline) Drive(l parcel.Locality) {
	if p.handler.Capabilities().SendImmediateParcels {
		p.driveImmediate(l)
		return
	}
	p.driveQueued(l)
}

func encodeBatch(enc encode.Encoder, buf []byte, ps []*parcel.Parcel, hs []parcel.WriteHandler) (encoded int, written int, bundle *completionBundle, err error) {
	encoded, written, err = enc.Encode(ps, buf)
	if err != nil {
		return 0, 0, nil, err
	}
	bundle = &completionBundle{parcels: ps[:encoded], handlers: hs[:encoded]}
	return encoded, written, bundle, nil
}

func yield() {
	runtime.Gosched()
}
