// Package buffer implements the PF buffer pool: a bounded cache of page
// frames keyed by (file descriptor, page number), with a pin/unfix
// protocol and LRU/MRU eviction. It is parameterized over caller-supplied
// read/write functions so it has no notion of on-disk layout itself — that
// split mirrors buf.c, whose PFbufGet/PFbufAlloc take function pointers
// (readfcn/writefcn) rather than calling disk I/O directly.
//
// Unlike the teacher's BufferManager, which tracks a ref-counted PinCount,
// frames here carry a boolean Pinned flag: the original buf.c's `fixed`
// field is boolean (a page already pinned once cannot be pinned again; it
// is reported as already-fixed, not ref-counted), and spec.md's contract
// for get_this_page/get_first_page follows that boolean model.
package buffer

import (
	"container/list"

	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/pferr"
)

// Policy selects eviction order.
type Policy string

const (
	LRU Policy = "LRU"
	MRU Policy = "MRU"
)

// Key identifies a page frame by owning file descriptor and page number.
type Key struct {
	FD      int
	PageNum int
}

// Frame is one resident page: its owning key, byte image, pin state and
// dirty bit.
type Frame struct {
	Key    Key
	Data   []byte
	Pinned bool
	Dirty  bool
}

// ReadFunc reads one page's bytes from disk for (fd, pageNum).
type ReadFunc func(fd, pageNum int) ([]byte, error)

// WriteFunc writes one page's bytes to disk for (fd, pageNum).
type WriteFunc func(fd, pageNum int, data []byte) error

// Stats holds the three counters spec.md §4.1 requires: logical reads
// (every Get or Alloc call, hit or miss), physical reads (misses that
// called ReadFunc) and physical writes (evictions/closes that called
// WriteFunc).
type Stats struct {
	LogicalReads   int
	PhysicalReads  int
	PhysicalWrites int
}

// Pool is the bounded (fd,page) frame cache. It owns the frame list (head =
// most recently used) and the hash index, exactly the pair of structures
// buf.c maintains (PFfirstbpage/PFlastbpage doubly linked list, plus a hash
// table by (fd,page)).
type Pool struct {
	maxBuffers int
	policy     Policy
	count      int
	order      *list.List // element.Value is *Frame; front = MRU, back = LRU
	index      map[Key]*list.Element
	stats      Stats
}

// NewPool builds an empty pool honoring cfg's MaxBuffers and BufferPolicy.
func NewPool(cfg *config.Config) *Pool {
	policy := LRU
	if cfg.BufferPolicy == string(MRU) {
		policy = MRU
	}
	return &Pool{
		maxBuffers: cfg.MaxBuffers,
		policy:     policy,
		order:      list.New(),
		index:      make(map[Key]*list.Element),
	}
}

// SetStrategy changes the eviction policy used by future allocations.
func (p *Pool) SetStrategy(policy Policy) {
	p.policy = policy
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats { return p.stats }

// ResetStats zeroes the counters.
func (p *Pool) ResetStats() { p.stats = Stats{} }

// touch moves a just-referenced frame to the head of the recency list.
// Eviction order (which end is the victim) is what actually differs between
// LRU and MRU; see victimElement.
func (p *Pool) touch(el *list.Element) {
	p.order.MoveToFront(el)
}

// victimElement returns the current eviction candidate (nil if none is free to
// evict): under LRU the least-recently-used frame is the tail; under MRU
// policy buf.c's PF_MRU strategy instead evicts the most-recently-used
// frame, i.e. the head.
func (p *Pool) victimElement() *list.Element {
	if p.policy == LRU {
		return p.order.Back()
	}
	return p.order.Front()
}

// Get pins the frame for (fd, pageNum), reading it via read on a cache
// miss and, if eviction is needed to make room, writing back a dirty victim
// via evictWrite. A hit on an already-pinned frame returns
// pferr.PFE_PAGEFIXED but still hands back the frame pointer, matching
// PFbufGet's documented behavior (downstream AM code depends on getting a
// usable buffer even when told the page was already fixed).
func (p *Pool) Get(fd, pageNum int, read ReadFunc, evictWrite WriteFunc) (*Frame, error) {
	p.stats.LogicalReads++
	key := Key{FD: fd, PageNum: pageNum}
	if el, ok := p.index[key]; ok {
		fr := el.Value.(*Frame)
		p.touch(el)
		if fr.Pinned {
			return fr, pferr.PFE_PAGEFIXED
		}
		fr.Pinned = true
		return fr, nil
	}
	data, err := read(fd, pageNum)
	if err != nil {
		return nil, err
	}
	p.stats.PhysicalReads++
	return p.insertEvicting(key, data, evictWrite)
}

// Alloc pins a brand-new, zero-filled frame for (fd, pageNum) without
// issuing a read, matching PF_AllocPage's contract that a freshly allocated
// page is never read from disk.
func (p *Pool) Alloc(fd, pageNum int, pageSize int, evictWrite WriteFunc) (*Frame, error) {
	p.stats.LogicalReads++
	key := Key{FD: fd, PageNum: pageNum}
	if _, ok := p.index[key]; ok {
		return nil, pferr.PFE_HASHPAGEEXIST
	}
	return p.insertEvicting(key, make([]byte, pageSize), evictWrite)
}

func (p *Pool) insertEvicting(key Key, data []byte, evictWrite WriteFunc) (*Frame, error) {
	if p.count < p.maxBuffers {
		fr := &Frame{Key: key, Data: data, Pinned: true}
		el := p.order.PushFront(fr)
		p.index[key] = el
		p.count++
		return fr, nil
	}
	victimEl := p.victimElement()
	for victimEl != nil {
		v := victimEl.Value.(*Frame)
		if !v.Pinned {
			break
		}
		if p.policy == LRU {
			victimEl = victimEl.Prev()
		} else {
			victimEl = victimEl.Next()
		}
	}
	if victimEl == nil {
		return nil, pferr.PFE_NOBUF
	}
	victim := victimEl.Value.(*Frame)
	if victim.Dirty {
		if evictWrite == nil {
			return nil, pferr.PFE_NOBUF
		}
		if err := evictWrite(victim.Key.FD, victim.Key.PageNum, victim.Data); err != nil {
			return nil, err
		}
		p.stats.PhysicalWrites++
	}
	delete(p.index, victim.Key)
	p.order.Remove(victimEl)
	fr := &Frame{Key: key, Data: data, Pinned: true}
	el := p.order.PushFront(fr)
	p.index[key] = el
	return fr, nil
}

// Unfix clears the pinned flag and ORs in dirty. It is idempotent when the
// (fd,page) key is absent from the pool: spec.md §4.1 requires unfix to
// tolerate cascaded error-unwinding paths that may unfix a page more than
// once or a page the caller merely believes is resident.
func (p *Pool) Unfix(fd, pageNum int, dirty bool) error {
	key := Key{FD: fd, PageNum: pageNum}
	el, ok := p.index[key]
	if !ok {
		return nil
	}
	fr := el.Value.(*Frame)
	if !fr.Pinned {
		return pferr.PFE_PAGEUNFIXED
	}
	fr.Pinned = false
	fr.Dirty = fr.Dirty || dirty
	return nil
}

// ReleaseFile evicts every frame belonging to fd, writing back dirty ones
// through write. It fails with PFE_PAGEFIXED (performing no work at all) if
// any frame for fd is still pinned, matching PFbufReleaseFile.
func (p *Pool) ReleaseFile(fd int, write WriteFunc) error {
	var toRemove []*list.Element
	for el := p.order.Front(); el != nil; el = el.Next() {
		fr := el.Value.(*Frame)
		if fr.Key.FD != fd {
			continue
		}
		if fr.Pinned {
			return pferr.PFE_PAGEFIXED
		}
		toRemove = append(toRemove, el)
	}
	for _, el := range toRemove {
		fr := el.Value.(*Frame)
		if fr.Dirty {
			if err := write(fr.Key.FD, fr.Key.PageNum, fr.Data); err != nil {
				return err
			}
			p.stats.PhysicalWrites++
		}
		delete(p.index, fr.Key)
		p.order.Remove(el)
		p.count--
	}
	return nil
}

// Lookup returns the resident frame for (fd,pageNum) without affecting pin
// state, used by tests and by diagnostics that need to assert on residency.
func (p *Pool) Lookup(fd, pageNum int) (*Frame, bool) {
	el, ok := p.index[Key{FD: fd, PageNum: pageNum}]
	if !ok {
		return nil, false
	}
	return el.Value.(*Frame), true
}

// Resident returns the number of frames currently held, for asserting the
// "never more than MAX_BUFS frames" invariant.
func (p *Pool) Resident() int { return p.count }
