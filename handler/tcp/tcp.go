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

// Package tcp is a reference queued-mode connection handler: one outbound
// *websocket.Conn per connection, framed writes, exercising the pipeline's
// queued flow. CreateConnection failures to a churning peer are
// circuit-broken by the cache, not by this package.
package tcp

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	liberr "github.com/hpcparcel/transport/errors"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
)

// Handler is the queued-mode reference connection handler.
type Handler struct {
	log    logger.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	running bool
}

// New builds a tcp Handler. Connections are dialed lazily by CreateConnection,
// a new one per call; how many stay open per locality is bounded by the cache.
func New(log logger.Logger) *Handler {
	return &Handler{log: log, dialer: websocket.DefaultDialer}
}

// Capabilities declares this handler queued-mode with the early-parcel and
// background-work flags set; BackgroundWork itself does no work.
func (h *Handler) Capabilities() handler.Capabilities {
	return handler.Capabilities{
		SendEarlyParcel:      true,
		SendImmediateParcels: false,
		DoBackgroundWork:     true,
	}
}

func (h *Handler) GetLocalityName() string { return "tcp" }

func (h *Handler) DoRun() bool {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	return true
}

func (h *Handler) DoStop() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

// CreateConnection dials a websocket connection to l.Address, treating it as
// a ws:// or wss:// URL.
func (h *Handler) CreateConnection(l parcel.Locality) (handler.Connection, error) {
	u, err := url.Parse(l.Address)
	if err != nil {
		return nil, parcel.NetworkError.Error(liberr.New(0, err.Error()))
	}

	conn, _, err := h.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, parcel.NetworkError.Error(liberr.New(0, err.Error()))
	}

	return &connection{locality: l, ws: conn}, nil
}

// GetConnection, ReclaimConnection and CanSendImmediate are never called:
// this handler does not declare SendImmediateParcels.
func (h *Handler) GetConnection(parcel.Locality) (handler.Connection, bool) { return nil, false }
func (h *Handler) ReclaimConnection(handler.Connection)                    {}
func (h *Handler) CanSendImmediate(parcel.Locality) bool                   { return false }

// BackgroundWork always returns false and does nothing: this handler keeps
// no registry of dialed connections (the pipeline owns them exclusively
// while in use), so the read side of open connections is not pumped and
// control frames (pings, close) are not observed here.
func (h *Handler) BackgroundWork(numThread int, mode handler.WriteMode) bool {
	return false
}

// connection adapts *websocket.Conn to handler.Connection.
type connection struct {
	locality parcel.Locality
	ws       *websocket.Conn
	buf      []byte
}

func (c *connection) Locality() parcel.Locality { return c.locality }

func (c *connection) Buffer(maxMessageSize int) []byte {
	if cap(c.buf) < maxMessageSize {
		c.buf = make([]byte, maxMessageSize)
	}
	return c.buf[:maxMessageSize]
}

func (c *connection) WriteAsync(n int, done func(error)) {
	go func() {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := c.ws.WriteMessage(websocket.BinaryMessage, c.buf[:n])
		done(err)
	}()
}

func (c *connection) Close() error {
	return c.ws.Close()
}
