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

// Package webrtc is a reference send-immediate-mode connection handler over
// a pre-negotiated pion/webrtc DataChannel - the RDMA-like fast path, since
// DataChannel.Send returns synchronously and BufferedAmount cheaply answers
// "can I send now?".
package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
)

// MaxOutboundMessageSize bounds CanSendImmediate's buffered-amount check;
// above this, the channel is treated as not ready even if technically open.
const MaxOutboundMessageSize = 16 * 1024

// Handler is the send-immediate-mode reference connection handler. Channels
// are pre-negotiated elsewhere (signaling is out of scope) and registered
// via Register before the port can reach that locality.
type Handler struct {
	log logger.Logger

	mu       sync.Mutex
	channels map[string]*webrtc.DataChannel
	busy     map[string]bool
}

// New builds a webrtc Handler with no channels registered.
func New(log logger.Logger) *Handler {
	return &Handler{
		log:      log,
		channels: make(map[string]*webrtc.DataChannel),
		busy:     make(map[string]bool),
	}
}

// Register binds an already-negotiated, open DataChannel to locality l,
// making it reachable via GetConnection.
func (h *Handler) Register(l parcel.Locality, dc *webrtc.DataChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[l.Address] = dc
}

func (h *Handler) Capabilities() handler.Capabilities {
	return handler.Capabilities{
		SendEarlyParcel:      false,
		SendImmediateParcels: true,
		DoBackgroundWork:     false,
	}
}

func (h *Handler) GetLocalityName() string { return "webrtc" }

func (h *Handler) DoRun() bool { return true }
func (h *Handler) DoStop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, dc := range h.channels {
		_ = dc.Close()
	}
	h.channels = make(map[string]*webrtc.DataChannel)
}

// CreateConnection is not part of this handler's normal path - channels are
// pre-negotiated and registered via Register, not created per-send.
func (h *Handler) CreateConnection(l parcel.Locality) (handler.Connection, error) {
	return nil, parcel.NetworkError.Error()
}

func (h *Handler) channelReady(l parcel.Locality) (*webrtc.DataChannel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dc, ok := h.channels[l.Address]
	if !ok || h.busy[l.Address] {
		return nil, false
	}
	if dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil, false
	}
	if dc.BufferedAmount() >= MaxOutboundMessageSize {
		return nil, false
	}
	return dc, true
}

// GetConnection hands back the registered DataChannel for l if it is open
// and not already checked out, marking it busy until ReclaimConnection.
func (h *Handler) GetConnection(l parcel.Locality) (handler.Connection, bool) {
	dc, ok := h.channelReady(l)
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	h.busy[l.Address] = true
	h.mu.Unlock()

	return &connection{locality: l, dc: dc}, true
}

// ReclaimConnection marks the channel free for the next GetConnection.
func (h *Handler) ReclaimConnection(c handler.Connection) {
	conn, ok := c.(*connection)
	if !ok {
		return
	}
	h.mu.Lock()
	h.busy[conn.locality.Address] = false
	h.mu.Unlock()
}

// CanSendImmediate reports whether l's channel is open and under its
// buffered-amount threshold.
func (h *Handler) CanSendImmediate(l parcel.Locality) bool {
	_, ok := h.channelReady(l)
	return ok
}

// BackgroundWork is never called: this handler does not declare
// DoBackgroundWork.
func (h *Handler) BackgroundWork(int, handler.WriteMode) bool { return false }

type connection struct {
	locality parcel.Locality
	dc       *webrtc.DataChannel
	buf      []byte
}

func (c *connection) Locality() parcel.Locality { return c.locality }

func (c *connection) Buffer(maxMessageSize int) []byte {
	if cap(c.buf) < maxMessageSize {
		c.buf = make([]byte, maxMessageSize)
	}
	return c.buf[:maxMessageSize]
}

// WriteAsync calls done synchronously: DataChannel.Send already returns only
// once the payload has been handed to the ICE transport, so there is no
// further completion to wait for on this path.
func (c *connection) WriteAsync(n int, done func(error)) {
	err := c.dc.Send(c.buf[:n])
	done(err)
}

func (c *connection) Close() error {
	return nil
}
