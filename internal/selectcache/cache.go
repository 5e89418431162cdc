// Package selectcache stores recent select query outputs under a short
// 32-bit handle for paginated retrieval. The handle's low 5 bits index one
// of 32 slots; the remaining bits carry the slot generation, which advances
// by the slot count on every reuse. A handle is therefore valid exactly
// until its slot is reclaimed, and a freshly issued handle can never
// collide with a still-pinned earlier one.
package selectcache

import (
	"sync"

	"github.com/airmettle/go-nvme-kv/internal/constants"
)

const numEntries = constants.SelectCacheEntries

type entry struct {
	data   []byte
	id     uint32
	lastID uint32
	inUse  bool
}

// Cache is the fixed-capacity select result table. One mutex covers all
// slots; every operation is a short critical section.
type Cache struct {
	mu     sync.Mutex
	slots  [numEntries]entry
	nextID uint32
}

// New creates a cache with each slot's generation seeded to its index, so
// that slot i always issues ids congruent to i mod 32.
func New() *Cache {
	c := &Cache{}
	for i := range c.slots {
		c.slots[i].lastID = uint32(i)
	}
	return c
}

// Store registers a result buffer and returns its handle. The cache takes
// ownership of data. The scan starts from a rotating cursor; the first free
// slot wins. With all 32 slots busy the entry with the smallest id (the
// oldest) is evicted, pinned or not.
func (c *Cache) Store(data []byte) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest *entry
	for i := 0; i < numEntries; i++ {
		e := &c.slots[c.nextID]
		if !e.inUse {
			e.inUse = true
			e.data = data
			e.id = e.lastID + numEntries
			c.nextID = (c.nextID + 1) % numEntries
			return e.id
		}
		if oldest == nil || oldest.id > e.id {
			oldest = e
		}
		c.nextID = (c.nextID + 1) % numEntries
	}

	// nothing empty, reuse the oldest
	oldest.data = data
	oldest.id += numEntries
	return oldest.id
}

// Retrieve looks up a handle. A slot whose current id differs from the
// requested one has been reclaimed and reports not-found.
//
// The slot is released unless doNotRemove is set, or doNotRemoveIfSizeGt is
// set and the stored buffer is larger than sizeCheck. On release the caller
// receives the original buffer and the slot's generation is banked in
// lastID for the next occupant. While pinned, the caller receives a copy so
// the host can page through a large result across several retrievals and
// free it with a final remove-on-fit call.
func (c *Cache) Retrieve(id uint32, doNotRemove, doNotRemoveIfSizeGt bool, sizeCheck uint64) (data []byte, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &c.slots[id%numEntries]
	if e.data == nil || e.id != id {
		return nil, false
	}

	data = e.data
	if !doNotRemove && (!doNotRemoveIfSizeGt || uint64(len(e.data)) <= sizeCheck) {
		e.data = nil
		e.lastID = e.id
		e.id = 0
		e.inUse = false
	} else {
		cp := make([]byte, len(data))
		copy(cp, data)
		data = cp
	}
	return data, true
}
