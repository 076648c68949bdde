package am

import "github.com/jordy-godjo/pfstore/pferr"

// TreeStats summarizes a tree's shape: how many leaf and internal pages it
// has, its height, and the total number of distinct keys stored. It is a
// read-only introspection aid, not part of the original's API surface,
// grounded on original_source/amlayer/amprint.c's recursive page walk
// (AM_PrintTree) but returning structured counts instead of printing.
type TreeStats struct {
	LeafCount     int
	InternalCount int
	Height        int
	KeyCount      int
}

// Stats walks the whole tree from the root and reports its shape.
func (t *Tree) Stats() (TreeStats, error) {
	return t.walkStats(rootPageNum, 1)
}

func (t *Tree) walkStats(pageNum int, depth int) (TreeStats, error) {
	buf, err := t.pfm.GetThisPage(t.fd, pageNum)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return TreeStats{}, ErrPF
	}
	defer t.pfm.UnfixPage(t.fd, pageNum, false)

	if buf[0] == 'l' {
		h := readLeafHeader(buf)
		return TreeStats{LeafCount: 1, Height: depth, KeyCount: int(h.numKeys)}, nil
	}

	h := readIntHeader(buf)
	agg := TreeStats{InternalCount: 1, Height: depth}
	for i := 0; i <= int(h.numKeys); i++ {
		child := childPtrAt(buf, i, t.attrLength)
		sub, err := t.walkStats(int(child), depth+1)
		if err != nil {
			return TreeStats{}, err
		}
		agg.LeafCount += sub.LeafCount
		agg.InternalCount += sub.InternalCount
		agg.KeyCount += sub.KeyCount
		if sub.Height > agg.Height {
			agg.Height = sub.Height
		}
	}
	return agg, nil
}
