package am

import "github.com/jordy-godjo/pfstore/pferr"

// routeInternal returns the child index to descend for value: a binary
// search for the first key strictly greater than value, with an exact
// match routing one slot to the right (spec.md §4.3, "ties route right").
func (t *Tree) routeInternal(buf []byte, h intHeader, value []byte) int {
	lo, hi := 0, int(h.numKeys)-1
	pos := int(h.numKeys)
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp := t.compare(intKeyAt(buf, mid, t.attrLength), value)
		switch {
		case cmp == 0:
			return mid + 1
		case cmp < 0:
			lo = mid + 1
		default:
			pos = mid
			hi = mid - 1
		}
	}
	return pos
}

// searchLeafKeys binary-searches a leaf's sorted keys, returning (true,
// index) on an exact match or (false, insertion position) otherwise.
func (t *Tree) searchLeafKeys(buf []byte, h leafHeader, value []byte) (bool, int) {
	lo, hi := 0, int(h.numKeys)-1
	pos := int(h.numKeys)
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp := t.compare(leafKeyAt(buf, mid, h.attrLength), value)
		switch {
		case cmp == 0:
			return true, mid
		case cmp < 0:
			lo = mid + 1
		default:
			pos = mid
			hi = mid - 1
		}
	}
	return false, pos
}

// search descends from the root to the leaf that would hold value, pushing
// one traversal-stack frame per internal node visited, and returns that
// leaf still pinned (the caller is responsible for unfixing it).
func (t *Tree) search(value []byte) (pageNum int, buf []byte, found bool, idx int, err error) {
	t.emptyStack()
	pageNum = rootPageNum
	for {
		buf, err = t.pfm.GetThisPage(t.fd, pageNum)
		if err != nil && err != pferr.PFE_PAGEFIXED {
			return 0, nil, false, 0, ErrPF
		}
		pinErr := err
		if buf[0] == 'l' {
			h := readLeafHeader(buf)
			found, idx = t.searchLeafKeys(buf, h, value)
			return pageNum, buf, found, idx, pinErr
		}
		h := readIntHeader(buf)
		childIdx := t.routeInternal(buf, h, value)
		t.stack = append(t.stack, stackFrame{pageNum: pageNum, index: childIdx})
		next := childPtrAt(buf, childIdx, t.attrLength)
		if uerr := t.pfm.UnfixPage(t.fd, pageNum, false); uerr != nil {
			return 0, nil, false, 0, ErrPF
		}
		pageNum = int(next)
	}
}
