package am

import "github.com/jordy-godjo/pfstore/pferr"

// DeleteEntry removes one occurrence of recID from value's rec-id list.
// If that list becomes empty the key itself is removed from the leaf. No
// page ever merges with a sibling on underflow (spec.md §4.3,
// "Non-goals": no rebalancing on delete).
func (t *Tree) DeleteEntry(value []byte, recID int32) error {
	pageNum, buf, found, idx, err := t.search(value)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return err
	}
	if !found {
		t.emptyStack()
		t.unfixPage(pageNum, false)
		return ErrNotFound
	}
	h := readLeafHeader(buf)

	removed, newHead := removeFromList(buf, &h, idx, recID)
	if !removed {
		t.emptyStack()
		t.unfixPage(pageNum, false)
		return ErrNotFound
	}

	if newHead == nullNode {
		removeKeyAt(buf, &h, idx)
	}
	writeLeafHeader(buf, h)
	t.emptyStack()
	return t.unfixPage(pageNum, true)
}

// removeFromList unlinks the node holding recID from key idx's chain,
// pushing that node onto the page's free list, and reports the chain's
// (possibly nil) new head.
func removeFromList(buf []byte, h *leafHeader, idx int, recID int32) (removed bool, newHead int16) {
	head := leafHeadAt(buf, idx, h.attrLength)
	prevOffset := int16(-1)
	node := head
	for node != nullNode {
		thisRecID, next := readRecIdNode(buf, node)
		if thisRecID == recID {
			if prevOffset == -1 {
				writeLeafHeadAt(buf, idx, next, h.attrLength)
			} else {
				prevRecID, _ := readRecIdNode(buf, prevOffset)
				writeRecIdNode(buf, prevOffset, prevRecID, next)
			}
			// push the freed node onto the page's free list
			writeRecIdNode(buf, node, 0, h.freeListPtr)
			h.freeListPtr = node
			h.numInFreeList++
			return true, leafHeadAt(buf, idx, h.attrLength)
		}
		prevOffset = node
		node = next
	}
	return false, head
}

// removeKeyAt deletes an emptied key slot, shifting all later entries left.
func removeKeyAt(buf []byte, h *leafHeader, idx int) {
	numKeys := int(h.numKeys)
	rs := recSize(h.attrLength)
	srcStart := leafHeaderSize + (idx+1)*rs
	srcEnd := leafHeaderSize + numKeys*rs
	dstStart := leafHeaderSize + idx*rs
	copy(buf[dstStart:dstStart+(srcEnd-srcStart)], buf[srcStart:srcEnd])
	h.numKeys--
	h.keyPtr -= int16(rs)
}
