package am

import "github.com/jordy-godjo/pfstore/pferr"

// scanState holds one open index scan's position: the leaf page currently
// pinned, which key within it, and which node within that key's rec-id
// list. It walks the leaf chain via nextLeafPage rather than re-descending
// from the root, per spec.md §4.3's "Scans".
type scanState struct {
	op         Op
	value      []byte
	state      int
	pageNum    int
	buf        []byte
	keyIdx     int
	nodeOffset int16
}

// OpenScan reserves a scan slot bounded by the tree's scan-table size and
// positions it at the leftmost leaf.
func (t *Tree) OpenScan(op Op, value []byte) (int, error) {
	if len(t.scans) >= t.maxScans {
		return -1, ErrScanTabFull
	}
	if op < ALL || op > NE {
		return -1, ErrInvalidOpToScan
	}
	id := t.nextScanID
	t.nextScanID++
	t.scans[id] = &scanState{op: op, value: value, state: scanFirst, pageNum: t.leftPageNum}
	return id, nil
}

func (t *Tree) matchPredicate(key, value []byte, op Op) bool {
	if op == ALL {
		return true
	}
	cmp := t.compare(key, value)
	switch op {
	case EQ:
		return cmp == 0
	case LT:
		return cmp < 0
	case GT:
		return cmp > 0
	case LE:
		return cmp <= 0
	case GE:
		return cmp >= 0
	case NE:
		return cmp != 0
	default:
		return false
	}
}

// FindNextEntry returns the next rec-id matching the scan's predicate, or
// ErrEOF once every leaf has been visited.
func (t *Tree) FindNextEntry(id int) (int32, error) {
	s, ok := t.scans[id]
	if !ok {
		return 0, ErrInvalidScanDesc
	}
	if s.state == scanOver {
		return 0, ErrEOF
	}
	for {
		if s.buf == nil {
			buf, err := t.pfm.GetThisPage(t.fd, s.pageNum)
			if err != nil && err != pferr.PFE_PAGEFIXED {
				return 0, ErrPF
			}
			s.buf = buf
		}
		h := readLeafHeader(s.buf)
		for s.keyIdx < int(h.numKeys) {
			key := leafKeyAt(s.buf, s.keyIdx, h.attrLength)
			if s.nodeOffset == nullNode {
				s.nodeOffset = leafHeadAt(s.buf, s.keyIdx, h.attrLength)
			}
			if s.nodeOffset == nullNode {
				s.keyIdx++
				continue
			}
			recID, next := readRecIdNode(s.buf, s.nodeOffset)
			matched := t.matchPredicate(key, s.value, s.op)
			if next != nullNode {
				s.nodeOffset = next
			} else {
				s.nodeOffset = nullNode
				s.keyIdx++
			}
			if matched {
				s.state = scanBusy
				return recID, nil
			}
		}
		next := h.nextLeafPage
		if err := t.pfm.UnfixPage(t.fd, s.pageNum, false); err != nil {
			return 0, ErrPF
		}
		s.buf = nil
		if next == nullPage {
			s.state = scanOver
			return 0, ErrEOF
		}
		s.pageNum = int(next)
		s.keyIdx = 0
		s.nodeOffset = nullNode
	}
}

// CloseScan releases the scan slot and any page it still has pinned.
func (t *Tree) CloseScan(id int) error {
	s, ok := t.scans[id]
	if !ok {
		return ErrInvalidScanDesc
	}
	if s.buf != nil {
		if err := t.pfm.UnfixPage(t.fd, s.pageNum, false); err != nil {
			return ErrPF
		}
	}
	delete(t.scans, id)
	return nil
}
