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

// Package port implements the Port Facade: the thin public surface
// (put_parcel, put_parcels, send_early_parcel, flush_parcels, stop,
// remove_from_connection_cache, statistics) that producers and the runtime
// actually call. Everything it does is delegate to cache, queue, pipeline,
// and background, plus the engine's own constructed -> running -> stopping
// -> terminated lifecycle.
package port

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpcparcel/transport/background"
	"github.com/hpcparcel/transport/cache"
	"github.com/hpcparcel/transport/encode"
	liberr "github.com/hpcparcel/transport/errors"
	errpool "github.com/hpcparcel/transport/errors/pool"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
	"github.com/hpcparcel/transport/pipeline"
	"github.com/hpcparcel/transport/queue"
)

// state is the engine's lifecycle, mirrored from the port facade down.
type state int32

const (
	stateConstructed state = iota
	stateRunning
	stateStopping
	stateTerminated
)

// Config configures a Port around one connection handler.
type Config struct {
	Handler                   handler.Handler
	Encoder                   encode.Encoder
	MaxConnections            int
	MaxConnectionsPerLocality int
	MaxOutboundMessageSize    int
	MaxBackgroundThreads      int
	Logger                    logger.Logger
}

// Port is the Port Facade. Construct with New, start with Run, and always
// pair every submitted parcel's handler with an eventual Stop - no new
// parcels are accepted once stop begins.
type Port struct {
	handler    handler.Handler
	cache      *cache.Cache
	queue      *queue.Queue
	pipeline   *pipeline.Pipeline
	background *background.Driver
	log        logger.Logger

	state     atomic.Int32
	startedAt time.Time

	errs errpool.Pool

	mu sync.Mutex
}

// New constructs a Port wired to cfg.Handler. The returned Port is in the
// constructed state; call Run before submitting parcels.
func New(cfg Config) *Port {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	enc := cfg.Encoder
	if enc == nil {
		enc = encode.NewCBOREncoder()
	}

	c := cache.New(cache.Config{
		MaxConnections:            cfg.MaxConnections,
		MaxConnectionsPerLocality: cfg.MaxConnectionsPerLocality,
	}, log)
	q := queue.New()

	p := pipeline.New(pipeline.Config{
		Handler:                cfg.Handler,
		Cache:                  c,
		Queue:                  q,
		Encoder:                enc,
		MaxOutboundMessageSize: cfg.MaxOutboundMessageSize,
		Logger:                 log,
	})

	bg := background.New(p, q, cfg.Handler, cfg.MaxBackgroundThreads)

	port := &Port{
		handler:    cfg.Handler,
		cache:      c,
		queue:      q,
		pipeline:   p,
		background: bg,
		log:        log,
		errs:       errpool.New(),
	}
	port.state.Store(int32(stateConstructed))
	return port
}

// Run transitions the port from constructed to running, starting the
// handler's transport lifecycle. Returns NetworkError if the handler
// refuses to start.
func (p *Port) Run() error {
	if !p.handler.DoRun() {
		return parcel.NetworkError.Error()
	}
	p.startedAt = time.Now()
	p.state.Store(int32(stateRunning))
	return nil
}

// IsRunning reports whether the port is accepting new parcels.
func (p *Port) IsRunning() bool {
	return state(p.state.Load()) == stateRunning
}

// Uptime returns the time elapsed since Run, or zero if never started.
func (p *Port) Uptime() time.Duration {
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

// ErrorsLast returns the most recently recorded Stop error, if any.
func (p *Port) ErrorsLast() error {
	return p.errs.Last()
}

// ErrorsList returns every error recorded across this port's lifetime.
func (p *Port) ErrorsList() []error {
	return p.errs.Slice()
}

// BackgroundTick runs one do_background_work iteration; wire it to a
// runtime worker thread's scheduling loop.
func (p *Port) BackgroundTick(mode handler.WriteMode) bool {
	return p.background.Tick(mode)
}

// StatValue returns one Connection Cache statistic, optionally resetting it.
func (p *Port) StatValue(s cache.Stat, reset bool) int64 {
	return p.cache.StatValue(s, reset)
}

func (p *Port) accepting() bool {
	return state(p.state.Load()) == stateRunning
}

func validateBatch(dest parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) error {
	if len(ps) != len(hs) {
		return parcel.BadParameter.Error()
	}
	for _, pc := range ps {
		if !pc.Destination.Equal(dest) {
			return parcel.BadParameter.Error()
		}
	}
	return nil
}

// PutParcel submits one parcel for delivery to dest, invoking h exactly once
// when it completes (successfully or not).
func (p *Port) PutParcel(dest parcel.Locality, payload []byte, h parcel.WriteHandler) error {
	if !p.accepting() {
		h(parcel.ShutdownError.Error(), nil)
		return nil
	}
	pc := parcel.New(dest, payload)
	p.pipeline.Submit(dest, []*parcel.Parcel{pc}, []parcel.WriteHandler{h})
	return nil
}

// PutParcels submits a batch of parcels, all addressed to dest, with aligned
// handlers. Mismatched lengths or a parcel addressed elsewhere raise
// BadParameter synchronously without invoking any handler.
func (p *Port) PutParcels(dest parcel.Locality, ps []*parcel.Parcel, hs []parcel.WriteHandler) error {
	if err := validateBatch(dest, ps, hs); err != nil {
		return err
	}

	if !p.accepting() {
		for i, pc := range ps {
			hs[i](parcel.ShutdownError.Error(), pc)
		}
		return nil
	}

	p.pipeline.Submit(dest, ps, hs)
	return nil
}

// SendEarlyParcel delegates to PutParcel with a built-in, logging-only
// handler, but only if the underlying handler declares SendEarlyParcel;
// otherwise it raises NetworkError without touching the handler.
func (p *Port) SendEarlyParcel(dest parcel.Locality, payload []byte) error {
	if !p.handler.Capabilities().SendEarlyParcel {
		return parcel.NetworkError.Error()
	}

	return p.PutParcel(dest, payload, func(err error, pc *parcel.Parcel) {
		if err != nil && p.log != nil {
			p.log.Warning("early parcel failed", nil, "destination", dest.String(), "err", err)
		}
	})
}

// FlushParcels cooperatively yields the calling goroutine until no writes
// are in flight and no destination has pending parcels. It returns once
// that predicate holds; new submissions after FlushParcels starts can make
// it observe a longer wait, by design. Callers must keep driving background
// ticks while flushing - a destination the handler can never get a
// connection for (capacity exhausted, peer unreachable) never reaches zero
// pending parcels on its own, so FlushParcels alone cannot be used to
// bound Stop; Stop does its own, connection-independent drain instead.
func (p *Port) FlushParcels() {
	for {
		if p.pipeline.OperationsInFlight() == 0 && p.queue.DestinationCount() == 0 {
			return
		}
		runtime.Gosched()
	}
}

// waitForInFlight cooperatively yields until every asynchronous write
// already issued before Stop began has completed. Unlike FlushParcels this
// never waits on queue.DestinationCount: a destination the cache can never
// grant a connection to (capacity exhausted, peer unreachable) would hold
// DestinationCount above zero forever, and it is exactly DrainAll, run
// right after this returns, that is supposed to clear it.
func (p *Port) waitForInFlight() {
	for p.pipeline.OperationsInFlight() > 0 {
		runtime.Gosched()
	}
}

// RemoveFromConnectionCache schedules a delayed invalidation of l's idle
// connections, deferring (and re-deferring) while writes are still in
// flight so the invalidation never races a just-issued write.
func (p *Port) RemoveFromConnectionCache(l parcel.Locality) {
	var retry func()
	retry = func() {
		if p.pipeline.OperationsInFlight() > 0 {
			time.AfterFunc(100*time.Millisecond, retry)
			return
		}
		p.cache.ClearLocality(l)
	}
	time.AfterFunc(100*time.Millisecond, retry)
}

// Stop waits out writes already in flight, delivers ShutdownError to every
// parcel still pending (recording each in the error pool surfaced through
// ErrorsLast/ErrorsList), and - if blocking - shuts down the cache and the
// handler. No new parcels are accepted once Stop begins.
func (p *Port) Stop(blocking bool) error {
	p.state.Store(int32(stateStopping))

	p.waitForInFlight()

	p.queue.DrainAll(func(l parcel.Locality, pc *parcel.Parcel, h parcel.WriteHandler) {
		err := parcel.ShutdownError.Error()
		p.errs.Add(err)
		h(err, pc)
	})

	if !blocking {
		return nil
	}

	p.cache.Shutdown()
	p.handler.DoStop()
	p.state.Store(int32(stateTerminated))

	if err := p.errs.Error(); err != nil {
		return liberr.Make(err)
	}
	return nil
}
