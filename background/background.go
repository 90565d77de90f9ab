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

// Package background implements the Background Progress Driver:
// do_background_work(num_thread, mode), called by runtime worker threads
// between scheduler ticks to make forward progress on queued work and on
// transport-level completion.
package background

import (
	"sync/atomic"

	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/pipeline"
	"github.com/hpcparcel/transport/queue"
)

// Driver distributes do_background_work calls across up to
// MaxBackgroundThreads worker slots via a round-robin counter, so two
// handlers sharing a worker pool don't serialize behind one another's
// thread index.
type Driver struct {
	pipeline             *pipeline.Pipeline
	queue                *queue.Queue
	handler              handler.Handler
	maxBackgroundThreads int

	counter atomic.Uint64
}

// New builds a Driver for one handler's pipeline and queue.
func New(p *pipeline.Pipeline, q *queue.Queue, h handler.Handler, maxBackgroundThreads int) *Driver {
	if maxBackgroundThreads <= 0 {
		maxBackgroundThreads = 1
	}
	return &Driver{pipeline: p, queue: q, handler: h, maxBackgroundThreads: maxBackgroundThreads}
}

// Tick is do_background_work: it is safe to call from any worker thread.
// It returns true if useful work was performed, for scheduler metering.
func (d *Driver) Tick(mode handler.WriteMode) bool {
	numThread := int(d.counter.Add(1)-1) % d.maxBackgroundThreads

	did := d.triggerPendingWork()

	if d.handler.Capabilities().DoBackgroundWork {
		if d.handler.BackgroundWork(numThread, mode) {
			did = true
		}
	}

	return did
}

// triggerPendingWork snapshots destinations under try-lock and invokes the
// pipeline's nonblocking drain path for each. A contended snapshot is simply
// skipped this tick - the next tick will retry.
func (d *Driver) triggerPendingWork() bool {
	dest, ok := d.queue.SnapshotDestinations()
	if !ok || len(dest) == 0 {
		return false
	}

	for _, l := range dest {
		d.pipeline.Drive(l)
	}
	return true
}
