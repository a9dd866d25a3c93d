package bridge

import "sync"

// HandleID is the opaque value handed to foreign callers. The low 32 bits
// select a slot and the high 32 bits carry the slot's generation, so an id
// that outlived its handle is rejected instead of reaching a reused slot.
// Zero never names a handle.
type HandleID uint64

func makeHandleID(index, gen uint32) HandleID {
	return HandleID(uint64(gen)<<32 | uint64(index+1))
}

func (id HandleID) split() (index, gen uint32, ok bool) {
	low := uint32(id)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(id >> 32), true
}

type slot struct {
	gen uint32
	h   *handle
}

// handleTable is a process-owned table of open handles.
type handleTable struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
	count int
}

func newHandleTable() *handleTable {
	return &handleTable{}
}

func (t *handleTable) insert(h *handle) HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		index = uint32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1})
	}
	s := &t.slots[index]
	s.h = h
	t.count++

	id := makeHandleID(index, s.gen)
	h.id = id
	return id
}

func (t *handleTable) get(id HandleID) (*handle, bool) {
	index, gen, ok := id.split()
	if !ok {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(index) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[index]
	if s.h == nil || s.gen != gen {
		return nil, false
	}
	return s.h, true
}

// remove detaches the handle named by id and retires the id.
func (t *handleTable) remove(id HandleID) (*handle, bool) {
	index, gen, ok := id.split()
	if !ok {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(index) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[index]
	if s.h == nil || s.gen != gen {
		return nil, false
	}
	h := s.h
	s.h = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, index)
	t.count--
	return h, true
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// drain removes every handle, used when the library shuts down.
func (t *handleTable) drain() []*handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*handle
	for i := range t.slots {
		s := &t.slots[i]
		if s.h == nil {
			continue
		}
		out = append(out, s.h)
		s.h = nil
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		t.free = append(t.free, uint32(i))
	}
	t.count = 0
	return out
}
