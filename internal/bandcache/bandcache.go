// Package bandcache implements the decoded-band cache (spec §4.G, §5):
// a fingerprint-keyed, single-flight cache of decompressed extent
// bytes, bounded by a byte budget and ranked for eviction by a
// TinyLFU admission policy.
//
// Grounded on internal/decompressioncache's "key a cache by a unique
// per-source name + checkpoint offset, decompress-on-miss and re-store"
// idea (generalized here from one reader's sequential checkpoints to
// any caller's fingerprinted region) and internal/spinner/concurrent.go's
// tinylfu.New(..., tinylfu.OnEvict(...)) wiring for the eviction policy
// itself. Neither teacher cache models an in-flight placeholder other
// goroutines can wait on — bigcache.Get either hits or misses, and
// spinner's multiplexer goroutine serializes all access through one
// channel instead — so the Loading/Ready/Evicted state machine and its
// mutex+condition-variable coordination is this package's own addition
// to fill that gap, matching spec §5's explicit description of it.
package bandcache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// Fingerprint identifies one cacheable decoded region: which backing
// file and which physical byte range within it produced these bytes.
type Fingerprint struct {
	FileID         int
	PhysicalOffset int64
	PhysicalSize   int64
}

func (f Fingerprint) hash() uint64 {
	var buf [24]byte
	putUint64(buf[0:8], uint64(f.FileID))
	putUint64(buf[8:16], uint64(f.PhysicalOffset))
	putUint64(buf[16:24], uint64(f.PhysicalSize))
	return xxhash.Sum64(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

type entryState int

const (
	stateLoading entryState = iota
	stateReady
	stateEvicted
)

type entry struct {
	state   entryState
	data    []byte
	err     error
	done    chan struct{} // closed when Loading transitions to Ready/Evicted
	lruElem *list.Element // this entry's node in Cache.lru, once Ready
}

// Decoder produces the bytes for a Fingerprint on a cache miss.
type Decoder func() ([]byte, error)

// Cache is a single-flight, byte-budgeted cache of decoded band/chunk
// data. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	entries map[uint64]*entry
	ranking *tinylfu.T[uint64, struct{}]
	lru     *list.List // of uint64 keys; front = most recently used
}

// New creates a Cache bounded by budgetBytes of decoded data.
func New(budgetBytes int64) *Cache {
	c := &Cache{
		budget:  budgetBytes,
		entries: make(map[uint64]*entry),
		lru:     list.New(),
	}
	// sample size 10x the window, matching spinner.Pool's own ratio.
	window := 256
	c.ranking = tinylfu.New[uint64, struct{}](window, window*10, func(k uint64) uint64 { return k }, tinylfu.OnEvict(c.onEvict))
	return c
}

// onEvict is invoked by the TinyLFU ranking when it drops a key from
// its own admission window; the actual byte accounting and entry
// removal happens under c.mu in evictLocked, which onEvict defers to.
func (c *Cache) onEvict(key uint64, _ struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(key)
}

func (c *Cache) evictLocked(key uint64) {
	e, ok := c.entries[key]
	if !ok || e.state != stateReady {
		return
	}
	c.used -= int64(len(e.data))
	e.state = stateEvicted
	if e.lruElem != nil {
		c.lru.Remove(e.lruElem)
		e.lruElem = nil
	}
	delete(c.entries, key)
}

// Get returns the decoded bytes for fp, decoding via decode on a miss.
// Concurrent callers requesting the same Fingerprint while a decode is
// in flight block on the same decode rather than triggering their own
// (spec §5's single-flight requirement).
func (c *Cache) Get(fp Fingerprint, decode Decoder) ([]byte, error) {
	key := fp.hash()

	c.mu.Lock()
	for {
		e, ok := c.entries[key]
		if !ok {
			e = &entry{state: stateLoading, done: make(chan struct{})}
			c.entries[key] = e
			c.mu.Unlock()
			return c.load(key, e, decode)
		}
		switch e.state {
		case stateReady:
			c.lru.MoveToFront(e.lruElem)
			c.mu.Unlock()
			c.ranking.Get(key)
			return e.data, e.err
		case stateEvicted:
			// Raced with eviction; retry as a fresh miss.
			delete(c.entries, key)
			continue
		default: // stateLoading: wait for the in-flight decode.
			done := e.done
			c.mu.Unlock()
			<-done
			if e.err != nil {
				return nil, e.err
			}
			c.mu.Lock()
		}
	}
}

// load runs decode for a freshly-registered Loading entry, then
// publishes the result and admits the key into the eviction ranking.
func (c *Cache) load(key uint64, e *entry, decode Decoder) ([]byte, error) {
	data, err := decode()

	c.mu.Lock()
	e.data, e.err = data, err
	if err != nil {
		e.state = stateEvicted
		delete(c.entries, key)
	} else {
		e.state = stateReady
		e.lruElem = c.lru.PushFront(key)
		c.used += int64(len(data))
	}
	close(e.done)
	c.mu.Unlock()

	if err == nil {
		c.ranking.Add(key, struct{}{})
		c.enforceBudget()
	}
	return data, err
}

// enforceBudget evicts Ready entries in true least-recently-used order
// (oldest tail of c.lru first) until the cache is back under budget.
// TinyLFU's own windowed admission already sheds cold keys via onEvict;
// this is the backstop for a budget measured in bytes rather than
// entry count, which tinylfu has no notion of.
func (c *Cache) enforceBudget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.used > c.budget {
		elem := c.lru.Back()
		if elem == nil {
			return
		}
		key := elem.Value.(uint64)
		c.lru.Remove(elem)
		e, ok := c.entries[key]
		if !ok || e.state != stateReady {
			continue
		}
		e.lruElem = nil
		c.used -= int64(len(e.data))
		e.state = stateEvicted
		delete(c.entries, key)
	}
}

// Len reports the number of entries currently tracked (any state).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UsedBytes reports the current byte usage of Ready entries.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
