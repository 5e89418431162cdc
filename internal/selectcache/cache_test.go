package selectcache

import (
	"bytes"
	"fmt"
	"testing"
)

func TestStoreRetrieveRemove(t *testing.T) {
	c := New()
	data := []byte("select result bytes")

	id := c.Store(data)
	got, found := c.Retrieve(id, false, false, 0)
	if !found {
		t.Fatal("stored entry not found")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("retrieved %q, want %q", got, data)
	}

	// Removal retrieval empties the slot.
	if _, found := c.Retrieve(id, false, false, 0); found {
		t.Error("entry still present after removing retrieve")
	}
}

func TestRetrieveUnknownID(t *testing.T) {
	c := New()
	if _, found := c.Retrieve(12345, false, false, 0); found {
		t.Error("unknown id reported found")
	}
}

func TestIDEncodesSlotAndGeneration(t *testing.T) {
	c := New()
	for i := 0; i < numEntries; i++ {
		id := c.Store([]byte{byte(i)})
		if id%numEntries != uint32(i) {
			t.Errorf("store %d: id %d does not index slot %d", i, id, i)
		}
	}
}

func TestPinSemantics(t *testing.T) {
	c := New()
	buf := make([]byte, 100)
	for i := range buf {
		buf[i] = byte(i)
	}
	sid := c.Store(buf)

	// Pinned retrieve returns a copy and keeps the slot.
	cp, found := c.Retrieve(sid, true, false, 0)
	if !found {
		t.Fatal("pinned retrieve did not find entry")
	}
	if !bytes.Equal(cp, buf) {
		t.Fatal("pinned retrieve returned different bytes")
	}
	cp[0] = 0xFF
	if buf[0] == 0xFF {
		t.Error("pinned retrieve returned the original buffer, not a copy")
	}

	// Conditional remove with a size check that fits releases the slot and
	// hands back the original.
	got, found := c.Retrieve(sid, false, true, 100)
	if !found {
		t.Fatal("conditional retrieve did not find entry")
	}
	if &got[0] != &buf[0] {
		t.Error("removing retrieve should return the original buffer")
	}
	if _, found := c.Retrieve(sid, false, false, 0); found {
		t.Error("entry still present after remove-on-fit")
	}
}

func TestConditionalRemoveKeepsLargeEntries(t *testing.T) {
	c := New()
	sid := c.Store(make([]byte, 200))

	// size_check below the data length: slot stays pinned.
	if _, found := c.Retrieve(sid, false, true, 100); !found {
		t.Fatal("entry not found")
	}
	if _, found := c.Retrieve(sid, false, true, 100); !found {
		t.Error("entry should remain while larger than the size check")
	}

	// Raising the check past the length releases it.
	if _, found := c.Retrieve(sid, false, true, 200); !found {
		t.Fatal("entry not found for final fetch")
	}
	if _, found := c.Retrieve(sid, false, false, 0); found {
		t.Error("entry still present after fitting fetch")
	}
}

func TestEvictionPicksOldest(t *testing.T) {
	c := New()
	ids := make([]uint32, numEntries)
	for i := range ids {
		ids[i] = c.Store([]byte(fmt.Sprintf("entry %d", i)))
	}

	// All 32 slots busy: the next store evicts the smallest id.
	newID := c.Store([]byte("overflow"))
	for _, id := range ids {
		if newID <= id {
			t.Fatalf("new id %d does not exceed outstanding id %d", newID, id)
		}
	}
	if _, found := c.Retrieve(ids[0], false, false, 0); found {
		t.Error("oldest entry survived eviction")
	}
	if got, found := c.Retrieve(newID, false, false, 0); !found || string(got) != "overflow" {
		t.Errorf("evicting store not retrievable: %q %v", got, found)
	}

	// The other 31 are untouched.
	for _, id := range ids[1:] {
		if _, found := c.Retrieve(id, true, false, 0); !found {
			t.Errorf("id %d lost during eviction", id)
		}
	}
}

func TestReuseAdvancesGeneration(t *testing.T) {
	c := New()
	first := c.Store([]byte("a"))
	if _, found := c.Retrieve(first, false, false, 0); !found {
		t.Fatal("first entry not found")
	}

	// 32 more stores cycle back onto the freed slot.
	var reused uint32
	for i := 0; i < numEntries; i++ {
		id := c.Store([]byte("b"))
		if id%numEntries == first%numEntries {
			reused = id
		}
	}
	if reused == 0 {
		t.Fatal("slot was not reused")
	}
	if reused <= first {
		t.Errorf("reused id %d does not exceed prior id %d", reused, first)
	}
	if _, found := c.Retrieve(first, false, false, 0); found {
		t.Error("stale id resolves after slot reuse")
	}
}
