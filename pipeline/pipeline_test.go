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

package pipeline_test

import (
	"bytes"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hpcparcel/transport/cache"
	"github.com/hpcparcel/transport/encode"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
	"github.com/hpcparcel/transport/pipeline"
	"github.com/hpcparcel/transport/queue"
)

// queuedConn completes writes synchronously and appends one nil entry to
// written per write; the payload bytes are not kept.
type queuedConn struct {
	mu      sync.Mutex
	written [][]byte
}

func (c *queuedConn) Locality() parcel.Locality { return parcel.Locality{} }
func (c *queuedConn) Buffer(n int) []byte       { return make([]byte, n) }
func (c *queuedConn) Close() error              { return nil }

func (c *queuedConn) WriteAsync(n int, done func(error)) {
	c.mu.Lock()
	c.written = append(c.written, nil)
	c.mu.Unlock()
	done(nil)
}

type queuedHandler struct {
	conn *queuedConn
}

func (h *queuedHandler) Capabilities() handler.Capabilities {
	return handler.Capabilities{SendImmediateParcels: false}
}
func (h *queuedHandler) GetLocalityName() string { return "fake-queued" }
func (h *queuedHandler) DoRun() bool              { return true }
func (h *queuedHandler) DoStop()                   {}
func (h *queuedHandler) CreateConnection(parcel.Locality) (handler.Connection, error) {
	return h.conn, nil
}
func (h *queuedHandler) GetConnection(parcel.Locality) (handler.Connection, bool) { return nil, false }
func (h *queuedHandler) ReclaimConnection(handler.Connection)                    {}
func (h *queuedHandler) CanSendImmediate(parcel.Locality) bool                   { return false }
func (h *queuedHandler) BackgroundWork(int, handler.WriteMode) bool              { return false }

var _ = Describe("Pipeline, queued mode", func() {
	var (
		dest parcel.Locality
		p    *pipeline.Pipeline
		h    *queuedHandler
	)

	BeforeEach(func() {
		dest = parcel.NewLocality("10.0.0.1:9000", "tcp")
		h = &queuedHandler{conn: &queuedConn{}}
		p = pipeline.New(pipeline.Config{
			Handler:                h,
			Cache:                  cache.New(cache.Config{MaxConnections: 4, MaxConnectionsPerLocality: 4}, logger.NewNop()),
			Queue:                  queue.New(),
			Encoder:                encode.NewCBOREncoder(),
			MaxOutboundMessageSize: 64 * 1024,
		})
	})

	It("fires every handler exactly once and leaves no operations in flight", func() {
		var count int32
		ps := make([]*parcel.Parcel, 5)
		hs := make([]parcel.WriteHandler, 5)
		for i := range ps {
			ps[i] = parcel.New(dest, bytes.Repeat([]byte("x"), 16))
			hs[i] = func(err error, _ *parcel.Parcel) {
				Expect(err).NotTo(HaveOccurred())
				atomic.AddInt32(&count, 1)
			}
		}

		p.Submit(dest, ps, hs)

		Eventually(func() int32 { return atomic.LoadInt32(&count) }).Should(Equal(int32(5)))
		Eventually(p.OperationsInFlight).Should(BeZero())
	})

	It("completes a batch submitted one parcel at a time in submission order", func() {
		var mu sync.Mutex
		var order []int
		for i := 0; i < 4; i++ {
			i := i
			p.Submit(dest, []*parcel.Parcel{parcel.New(dest, []byte("p"))}, []parcel.WriteHandler{
				func(err error, _ *parcel.Parcel) {
					Expect(err).NotTo(HaveOccurred())
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
				},
			})
		}

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(order)
		}).Should(Equal(4))
		Eventually(p.OperationsInFlight).Should(BeZero())

		mu.Lock()
		defer mu.Unlock()
		Expect(order).To(Equal([]int{0, 1, 2, 3}))
	})
})
