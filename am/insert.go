package am

import "github.com/jordy-godjo/pfstore/pferr"

// InsertEntry adds (value, recID) to the tree: if value already has a key
// entry, recID is prepended to that key's rec-id list; otherwise a new key
// slot is created. A full leaf splits, and a full split can cascade up the
// traversal stack to the root (spec.md §4.3, "Insertion").
func (t *Tree) InsertEntry(value []byte, recID int32) error {
	pageNum, buf, found, idx, err := t.search(value)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return err
	}
	h := readLeafHeader(buf)

	if found {
		t.insertIntoExistingKey(buf, &h, idx, recID)
		writeLeafHeader(buf, h)
		t.emptyStack()
		return t.unfixPage(pageNum, true)
	}

	// A new key needs one key slot plus one rec-id node (unless a freed node
	// can be reused); the leaf splits when it has maxKeys keys or when those
	// bytes no longer fit between the key region and the rec-id region.
	need := recSize(h.attrLength)
	if h.freeListPtr == nullNode {
		need += recIdNodeSize
	}
	keyEnd := leafHeaderSize + int(h.numKeys)*recSize(h.attrLength)
	if int(h.numKeys) < t.maxKeys && keyEnd+need <= int(h.recIdPtr) {
		t.insertNewKey(buf, &h, value, idx, recID)
		writeLeafHeader(buf, h)
		t.emptyStack()
		return t.unfixPage(pageNum, true)
	}

	separator, rightPageNum, rootHandled, err := t.splitLeaf(pageNum, buf, h, value, recID, idx)
	if err != nil {
		t.emptyStack()
		return err
	}
	if rootHandled {
		t.emptyStack()
		return nil
	}
	err = t.addToParent(rightPageNum, separator)
	t.emptyStack()
	return err
}

func (t *Tree) unfixPage(pageNum int, dirty bool) error {
	if err := t.pfm.UnfixPage(t.fd, pageNum, dirty); err != nil {
		return ErrPF
	}
	return nil
}

func (t *Tree) insertIntoExistingKey(buf []byte, h *leafHeader, idx int, recID int32) {
	oldHead := leafHeadAt(buf, idx, h.attrLength)
	newOffset := allocRecIdNode(buf, h)
	writeRecIdNode(buf, newOffset, recID, oldHead)
	writeLeafHeadAt(buf, idx, newOffset, h.attrLength)
}

func (t *Tree) insertNewKey(buf []byte, h *leafHeader, value []byte, idx int, recID int32) {
	numKeys := int(h.numKeys)
	rs := recSize(h.attrLength)
	// shift entries [idx, numKeys) right by one slot
	srcStart := leafHeaderSize + idx*rs
	srcEnd := leafHeaderSize + numKeys*rs
	copy(buf[srcStart+rs:srcEnd+rs], buf[srcStart:srcEnd])

	writeLeafKeyAt(buf, idx, value, h.attrLength)
	newOffset := allocRecIdNode(buf, h)
	writeRecIdNode(buf, newOffset, recID, nullNode)
	writeLeafHeadAt(buf, idx, newOffset, h.attrLength)

	h.numKeys++
	h.keyPtr += int16(rs)
}

// leafEntry is a logical (key, rec-id-list-head) pair lifted out of a full
// leaf so it can be redistributed across the two pages a split produces.
type leafEntry struct {
	key     []byte
	head    int16
	pending bool // true for the entry being inserted; its list lives nowhere yet
}

// splitLeaf redistributes a full leaf's entries plus the new one being
// inserted across the original page and a freshly allocated one, in
// roughly even halves. If the leaf being split is the root, its contents
// are relocated to a new page and page 0 is reinitialized as an internal
// root — the root's page number never changes.
func (t *Tree) splitLeaf(pageNum int, buf []byte, h leafHeader, newValue []byte, newRecID int32, insertIdx int) ([]byte, int, bool, error) {
	numKeys := int(h.numKeys)
	entries := make([]leafEntry, 0, numKeys+1)
	for i := 0; i < numKeys; i++ {
		if i == insertIdx {
			entries = append(entries, leafEntry{key: newValue, pending: true})
		}
		entries = append(entries, leafEntry{key: leafKeyAt(buf, i, h.attrLength), head: leafHeadAt(buf, i, h.attrLength)})
	}
	if insertIdx == numKeys {
		entries = append(entries, leafEntry{key: newValue, pending: true})
	}

	total := len(entries)
	leftCount := total / 2
	leftEntries := entries[:leftCount]
	rightEntries := entries[leftCount:]
	// Copy the separator now: entry keys are slices of buf, which is
	// overwritten with the left half below.
	separator := append([]byte(nil), rightEntries[0].key...)

	rightPageNum, rightBuf, err := t.pfm.AllocPage(t.fd)
	if err != nil {
		return nil, 0, false, ErrPF
	}
	rightHeader := leafHeader{
		pageType: 'l', nextLeafPage: h.nextLeafPage, recIdPtr: int16(len(rightBuf)),
		keyPtr: leafHeaderSize, attrLength: h.attrLength, maxKeys: h.maxKeys,
		numKeys: int16(len(rightEntries)),
	}
	for i, e := range rightEntries {
		t.placeLeafEntry(buf, rightBuf, &rightHeader, i, e, newRecID)
	}
	writeLeafHeader(rightBuf, rightHeader)

	leftTemp := make([]byte, len(buf))
	leftHeader := leafHeader{
		pageType: 'l', nextLeafPage: int32(rightPageNum), recIdPtr: int16(len(leftTemp)),
		keyPtr: leafHeaderSize, attrLength: h.attrLength, maxKeys: h.maxKeys,
		numKeys: int16(len(leftEntries)),
	}
	for i, e := range leftEntries {
		t.placeLeafEntry(buf, leftTemp, &leftHeader, i, e, newRecID)
	}
	writeLeafHeader(leftTemp, leftHeader)
	copy(buf, leftTemp)

	if pageNum == rootPageNum {
		oldCopyPageNum, oldCopyBuf, err := t.pfm.AllocPage(t.fd)
		if err != nil {
			return nil, 0, false, ErrPF
		}
		copy(oldCopyBuf, buf)
		if t.leftPageNum == rootPageNum {
			t.leftPageNum = oldCopyPageNum
		}
		if err := t.unfixPage(oldCopyPageNum, true); err != nil {
			return nil, 0, false, err
		}
		fillRootPage(buf, oldCopyPageNum, rightPageNum, separator, h.attrLength, h.maxKeys)
		if err := t.unfixPage(pageNum, true); err != nil {
			return nil, 0, false, err
		}
		if err := t.unfixPage(rightPageNum, true); err != nil {
			return nil, 0, false, err
		}
		return separator, rightPageNum, true, nil
	}

	if err := t.unfixPage(pageNum, true); err != nil {
		return nil, 0, false, err
	}
	if err := t.unfixPage(rightPageNum, true); err != nil {
		return nil, 0, false, err
	}
	return separator, rightPageNum, false, nil
}

// placeLeafEntry writes entry e into dstBuf at position i, either
// allocating a fresh single-node list (the pending new entry) or copying
// the entry's existing rec-id chain out of the old page.
func (t *Tree) placeLeafEntry(srcBuf, dstBuf []byte, dstHeader *leafHeader, i int, e leafEntry, newRecID int32) {
	writeLeafKeyAt(dstBuf, i, e.key, dstHeader.attrLength)
	var headOff int16
	if e.pending {
		headOff = allocRecIdNode(dstBuf, dstHeader)
		writeRecIdNode(dstBuf, headOff, newRecID, nullNode)
	} else {
		headOff = copyKeyList(srcBuf, e.head, dstBuf, dstHeader)
	}
	writeLeafHeadAt(dstBuf, i, headOff, dstHeader.attrLength)
}

// fillRootPage reinitializes buf (always page 0) as a brand-new internal
// node with a single separator key routing between leftChild and
// rightChild.
func fillRootPage(buf []byte, leftChild, rightChild int, key []byte, attrLength, maxKeys int16) {
	writeIntHeader(buf, intHeader{pageType: 'i', numKeys: 1, maxKeys: maxKeys, attrLength: attrLength})
	writeChildPtrAt(buf, 0, int32(leftChild), int(attrLength))
	writeIntKeyAt(buf, 0, key, int(attrLength))
	writeChildPtrAt(buf, 1, int32(rightChild), int(attrLength))
}

// addToParent walks up the traversal stack, inserting (key, childPageNum)
// into the parent recorded at the top of the stack, splitting that parent
// in turn if it is full.
func (t *Tree) addToParent(childPageNum int, key []byte) error {
	if len(t.stack) == 0 {
		return ErrInternal
	}
	frame := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	buf, err := t.pfm.GetThisPage(t.fd, frame.pageNum)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return ErrPF
	}
	h := readIntHeader(buf)

	if int(h.numKeys) < t.maxKeys {
		addToIntPage(buf, &h, key, childPageNum, frame.index, t.attrLength)
		writeIntHeader(buf, h)
		return t.unfixPage(frame.pageNum, true)
	}

	newSeparator, newRightPageNum, rootHandled, err := t.splitIntNode(frame.pageNum, buf, h, key, childPageNum, frame.index)
	if err != nil {
		return err
	}
	if rootHandled {
		return nil
	}
	return t.addToParent(newRightPageNum, newSeparator)
}

// addToIntPage inserts (key, newChildPageNum) into an internal node with
// room to spare: newChildPageNum becomes the child immediately to the
// right of the child that was just split (recorded as atIndex).
func addToIntPage(buf []byte, h *intHeader, key []byte, newChildPageNum int, atIndex int, attrLength int) {
	for i := int(h.numKeys); i > atIndex; i-- {
		writeIntKeyAt(buf, i, intKeyAt(buf, i-1, attrLength), attrLength)
		writeChildPtrAt(buf, i+1, childPtrAt(buf, i, attrLength), attrLength)
	}
	writeIntKeyAt(buf, atIndex, key, attrLength)
	writeChildPtrAt(buf, atIndex+1, int32(newChildPageNum), attrLength)
	h.numKeys++
}

// splitIntNode mirrors splitLeaf for internal nodes: the combined
// maxKeys+1 keys (and maxKeys+2 children) are built in memory, the middle
// key floats up as the new separator, and the two halves are written back
// to the original page and a freshly allocated one.
func (t *Tree) splitIntNode(pageNum int, buf []byte, h intHeader, newKey []byte, newChildPageNum int, atIndex int) ([]byte, int, bool, error) {
	attrLength := t.attrLength
	maxKeys := int(h.maxKeys)

	keys := make([][]byte, 0, maxKeys+1)
	children := make([]int32, 0, maxKeys+2)
	children = append(children, childPtrAt(buf, 0, attrLength))
	for i := 0; i < maxKeys; i++ {
		keys = append(keys, intKeyAt(buf, i, attrLength))
		children = append(children, childPtrAt(buf, i+1, attrLength))
	}
	// insert newKey at position atIndex, newChildPageNum right after it
	keys = append(keys, nil)
	copy(keys[atIndex+1:], keys[atIndex:])
	keys[atIndex] = newKey
	children = append(children, 0)
	copy(children[atIndex+2:], children[atIndex+1:])
	children[atIndex+1] = int32(newChildPageNum)

	leftCount := maxKeys / 2
	midKey := append([]byte(nil), keys[leftCount]...)

	rightKeys := keys[leftCount+1:]
	rightChildren := children[leftCount+1:]
	leftKeys := keys[:leftCount]
	leftChildren := children[:leftCount+1]

	rightPageNum, rightBuf, err := t.pfm.AllocPage(t.fd)
	if err != nil {
		return nil, 0, false, ErrPF
	}
	writeIntHeader(rightBuf, intHeader{pageType: 'i', numKeys: int16(len(rightKeys)), maxKeys: h.maxKeys, attrLength: h.attrLength})
	for i, c := range rightChildren {
		writeChildPtrAt(rightBuf, i, c, attrLength)
	}
	for i, k := range rightKeys {
		writeIntKeyAt(rightBuf, i, k, attrLength)
	}

	leftTemp := make([]byte, len(buf))
	writeIntHeader(leftTemp, intHeader{pageType: 'i', numKeys: int16(len(leftKeys)), maxKeys: h.maxKeys, attrLength: h.attrLength})
	for i, c := range leftChildren {
		writeChildPtrAt(leftTemp, i, c, attrLength)
	}
	for i, k := range leftKeys {
		writeIntKeyAt(leftTemp, i, k, attrLength)
	}
	copy(buf, leftTemp)

	if pageNum == rootPageNum {
		oldCopyPageNum, oldCopyBuf, err := t.pfm.AllocPage(t.fd)
		if err != nil {
			return nil, 0, false, ErrPF
		}
		copy(oldCopyBuf, buf)
		if err := t.unfixPage(oldCopyPageNum, true); err != nil {
			return nil, 0, false, err
		}
		fillRootPage(buf, oldCopyPageNum, rightPageNum, midKey, h.attrLength, h.maxKeys)
		if err := t.unfixPage(pageNum, true); err != nil {
			return nil, 0, false, err
		}
		if err := t.unfixPage(rightPageNum, true); err != nil {
			return nil, 0, false, err
		}
		return midKey, rightPageNum, true, nil
	}

	if err := t.unfixPage(pageNum, true); err != nil {
		return nil, 0, false, err
	}
	if err := t.unfixPage(rightPageNum, true); err != nil {
		return nil, 0, false, err
	}
	return midKey, rightPageNum, false, nil
}
