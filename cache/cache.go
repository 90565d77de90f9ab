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

// Package cache implements the Connection Cache: a bounded pool of reusable
// outbound connections keyed by destination locality, enforcing both a
// global and a per-locality capacity with least-recently-reclaimed eviction.
//
// The idle pool is backed by hashicorp/golang-lru/v2: one global LRU over
// every idle connection (enforcing max_connections) and, per locality, a
// small ordered slice used to find that locality's oldest idle entry when
// its own cap is hit. Both are mutated under the cache's single lock so they
// never disagree about which entry is oldest.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/parcel"
)

// Result is the outcome of GetOrReserve.
type Result uint8

const (
	// ResultConnection: an idle connection was handed back, ready to use.
	ResultConnection Result = iota
	// ResultReserved: no idle connection, but a slot was granted; the
	// caller must create a connection and eventually Reclaim or Clear it.
	ResultReserved
	// ResultFull: neither an idle connection nor a free slot is available.
	ResultFull
)

// Stat names one of the cache's atomic counters.
type Stat uint8

const (
	StatInsertions Stat = iota
	StatEvictions
	StatHits
	StatMisses
	StatReclaims
	statCount
)

type entry struct {
	locality parcel.Locality
	conn     handler.Connection
}

type localityState struct {
	idleKeys []uint64 // oldest first
	reserved int
	inUse    int
}

// Cache is the Connection Cache. The zero value is not usable; use New.
type Cache struct {
	mu sync.Mutex

	maxGlobal      int
	maxPerLocality int

	global *lru.Cache[uint64, *entry]
	states map[uuid.UUID]*localityState // keyed by Locality.Key()
	names  map[uuid.UUID]parcel.Locality

	breakers map[uuid.UUID]*gobreaker.CircuitBreaker

	nextKey uint64

	idleCount int
	stats     [statCount]int64

	closed bool

	log logger.Logger
}

// Config carries the cache's two capacity bounds: global and per-locality.
type Config struct {
	MaxConnections            int
	MaxConnectionsPerLocality int
}

// New builds a Cache honoring cfg's capacities.
func New(cfg Config, log logger.Logger) *Cache {
	c := &Cache{
		maxGlobal:      cfg.MaxConnections,
		maxPerLocality: cfg.MaxConnectionsPerLocality,
		states:         make(map[uuid.UUID]*localityState),
		names:          make(map[uuid.UUID]parcel.Locality),
		breakers:       make(map[uuid.UUID]*gobreaker.CircuitBreaker),
		log:            log,
	}

	g, _ := lru.NewWithEvict[uint64, *entry](max(cfg.MaxConnections, 1), func(key uint64, e *entry) {
		c.onEvicted(key, e)
	})
	c.global = g

	return c
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// onEvicted runs with mu already held (golang-lru/v2 invokes the eviction
// callback synchronously from within the method that triggered it).
func (c *Cache) onEvicted(key uint64, e *entry) {
	lk := e.locality.Key()
	if st, ok := c.states[lk]; ok {
		st.idleKeys = removeKey(st.idleKeys, key)
	}
	c.idleCount--
	if e.conn == nil {
		// taken out by GetOrReserve for reuse, not evicted
		return
	}
	c.stats[StatEvictions]++
	_ = e.conn.Close()
}

func removeKey(s []uint64, k uint64) []uint64 {
	for i, v := range s {
		if v == k {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func (c *Cache) stateOf(l parcel.Locality) (uuid.UUID, *localityState) {
	lk := l.Key()
	st, ok := c.states[lk]
	if !ok {
		st = &localityState{}
		c.states[lk] = st
		c.names[lk] = l
	}
	return lk, st
}

// GetOrReserve implements Connection Cache's headline operation: hand back
// an idle connection if one exists for l, else grant a reservation slot if
// capacity allows, else report Full.
func (c *Cache) GetOrReserve(l parcel.Locality) (handler.Connection, Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ResultFull
	}

	_, st := c.stateOf(l)

	if len(st.idleKeys) > 0 {
		key := st.idleKeys[0]
		e, ok := c.global.Get(key)
		if ok {
			conn := e.conn
			e.conn = nil
			// onEvicted drops key from idleKeys and decrements idleCount
			c.global.Remove(key)
			st.inUse++
			c.stats[StatHits]++
			return conn, ResultConnection
		}
		// stale entry - fall through to reservation path
		st.idleKeys = st.idleKeys[1:]
	}

	c.stats[StatMisses]++

	used := len(st.idleKeys) + st.reserved + st.inUse
	if used >= c.maxPerLocality {
		return nil, ResultFull
	}

	globalUsed := c.idleCount + c.reservedTotal() + c.inUseTotal()
	if globalUsed >= c.maxGlobal {
		return nil, ResultFull
	}

	st.reserved++
	return nil, ResultReserved
}

func (c *Cache) reservedTotal() int {
	t := 0
	for _, st := range c.states {
		t += st.reserved
	}
	return t
}

func (c *Cache) inUseTotal() int {
	t := 0
	for _, st := range c.states {
		t += st.inUse
	}
	return t
}

// Reclaim returns a healthy connection to the idle pool, converting either a
// reservation or an in-use slot into an idle entry, evicting the
// least-recently-reclaimed idle connection (globally, and per-locality if
// that destination is over its own cap) to make room.
func (c *Cache) Reclaim(l parcel.Locality, conn handler.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = conn.Close()
		return
	}

	_, st := c.stateOf(l)

	if st.reserved > 0 {
		st.reserved--
	} else if st.inUse > 0 {
		st.inUse--
	}

	for len(st.idleKeys) > 0 && len(st.idleKeys)+1 > c.maxPerLocality {
		c.global.Remove(st.idleKeys[0])
	}

	key := c.nextKey
	c.nextKey++
	c.global.Add(key, &entry{locality: l, conn: conn})
	st.idleKeys = append(st.idleKeys, key)
	c.idleCount++
	c.stats[StatInsertions]++
	c.stats[StatReclaims]++
}

// ReleaseReservation gives back a slot granted by GetOrReserve without ever
// having created a connection for it (used when handler.CreateConnection
// itself fails).
func (c *Cache) ReleaseReservation(l parcel.Locality) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, st := c.stateOf(l)
	if st.reserved > 0 {
		st.reserved--
	}
}

// Clear discards a specific failed connection, decrementing counts and
// freeing its slot without returning it to the idle pool.
func (c *Cache) Clear(l parcel.Locality, conn handler.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, st := c.stateOf(l)
	if st.inUse > 0 {
		st.inUse--
	} else if st.reserved > 0 {
		st.reserved--
	}
	_ = conn.Close()
}

// ClearLocality evicts all idle connections for l, used after peer churn.
func (c *Cache) ClearLocality(l parcel.Locality) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lk := l.Key()
	st, ok := c.states[lk]
	if !ok {
		return
	}
	keys := append([]uint64{}, st.idleKeys...)
	for _, k := range keys {
		c.global.Remove(k)
	}
}

// ClearAll evicts every idle connection in the cache.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global.Purge()
	for _, st := range c.states {
		st.idleKeys = nil
	}
	c.idleCount = 0
}

// Shutdown quiesces the cache; subsequent GetOrReserve calls return Full.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.ClearAll()
}

// StatValue returns one counter's current value, optionally resetting it to
// zero atomically.
func (c *Cache) StatValue(s Stat, reset bool) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.stats[s]
	if reset {
		c.stats[s] = 0
	}
	return v
}

// breakerFor lazily creates the per-locality circuit breaker guarding
// CreateConnection.
func (c *Cache) breakerFor(l parcel.Locality) *gobreaker.CircuitBreaker {
	lk := l.Key()
	if b, ok := c.breakers[lk]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "connect:" + l.String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	c.breakers[lk] = b
	return b
}

// CreateConnection calls h.CreateConnection(l), circuit-breaking repeated
// failures to a churning peer so the engine backs off instead of
// hot-looping reconnects against a destination that is down. While the
// breaker is open this returns gobreaker.ErrOpenState without touching h.
func (c *Cache) CreateConnection(h handler.Handler, l parcel.Locality) (handler.Connection, error) {
	c.mu.Lock()
	b := c.breakerFor(l)
	c.mu.Unlock()

	conn, err := b.Execute(func() (interface{}, error) {
		return h.CreateConnection(l)
	})
	if err != nil {
		return nil, err
	}
	return conn.(handler.Connection), nil
}
