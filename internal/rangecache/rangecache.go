// Package rangecache caches byte ranges read from RAR volumes, one merging
// span list per volume path, so the streaming wrapper (cmd/rarcat) can serve
// repeated overlapping reads of the same compressed bytes from memory
// instead of reading the volume again; decoding still runs on every read.
// It is not part of the core decode path.
package rangecache

import (
	"encoding/binary"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// rng is one cached (offset, bytes) span, ported from the merging
// byte-range list design: adjacent or overlapping spans for the same key
// are melded together on insert so a later wider read can be served from
// fewer, larger cached spans.
type rng struct {
	off int64
	buf []byte
}

func (r rng) end() int64 { return r.off + int64(len(r.buf)) }

func (r *rng) incorporate(r2 rng) bool {
	if r2.end() < r.off || r.end() < r2.off {
		return false
	}
	if r2.off < r.off {
		*r, r2 = r2, *r
	}
	if r2.end() > r.end() {
		r.buf = append(r.buf, make([]byte, int(r2.end()-r.end()))...)
	}
	copy(r.buf[r2.off-r.off:], r2.buf)
	return true
}

type rangeList []rng

func (l *rangeList) get(p []byte, off int64) bool {
	i, hit := slices.BinarySearchFunc(*l, off, func(a rng, b int64) int {
		switch {
		case a.end() < b:
			return -1
		case a.off > b:
			return 1
		default:
			return 0
		}
	})
	if !hit {
		return false
	}
	got := (*l)[i]
	if got.end() < off+int64(len(p)) {
		return false
	}
	copy(p, got.buf[off-got.off:])
	return true
}

func (l *rangeList) set(p []byte, off int64) {
	i, hit := slices.BinarySearchFunc(*l, off, func(a rng, b int64) int {
		switch {
		case a.end() < b:
			return -1
		case a.off > b:
			return 1
		default:
			return 0
		}
	})
	r := rng{off, append([]byte(nil), p...)}
	if hit {
		(*l)[i].incorporate(r)
	} else {
		*l = slices.Insert(*l, i, r)
	}
	for i+1 < len(*l) {
		if (*l)[i].incorporate((*l)[i+1]) {
			*l = slices.Delete(*l, i+1, i+2)
		} else {
			break
		}
	}
}

// Cache holds one merging rangeList per archive path, admission-gated by
// a TinyLFU policy keyed on xxhash.Sum64 of (path, offset, length) so
// rarely-touched volumes get evicted before popular ones.
type Cache struct {
	mu    sync.Mutex
	lists map[string]*rangeList
	lfu   *tinylfu.T[uint64, string]
}

// New builds a cache admitting up to samples distinct (path, range) keys,
// with window controlling the TinyLFU admission sketch's recency decay.
func New(samples, window int) *Cache {
	c := &Cache{lists: make(map[string]*rangeList)}
	c.lfu = tinylfu.New[uint64, string](samples, window, hashKey, tinylfu.OnEvict(c.evict))
	return c
}

func hashKey(k uint64) uint64 { return k }

func key(path string, off int64, length int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(off))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(length))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func (c *Cache) evict(k uint64, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, path)
}

// Get copies into p the bytes covering [off, off+len(p)) for path, if a
// previously cached span covers the whole request.
func (c *Cache) Get(path string, off int64, p []byte) bool {
	k := key(path, off, len(p))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lfu.Get(k) // records the access in the TinyLFU frequency sketch
	l, ok := c.lists[path]
	if !ok {
		return false
	}
	return l.get(p, off)
}

// Put records buf as the cached span starting at off for path.
func (c *Cache) Put(path string, off int64, buf []byte) {
	k := key(path, off, len(buf))
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[path]
	if !ok {
		l = &rangeList{}
		c.lists[path] = l
	}
	l.set(buf, off)
	c.lfu.Add(k, path)
}
