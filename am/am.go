// Package am implements the Access Method layer: a B+-tree secondary index
// over a single attribute, built on pf. Leaves hold sorted keys each
// pointing to a singly linked list of record identifiers; internal nodes
// route searches. Grounded directly on
// original_source/amlayer/{am.h,am.c,amfns.c,amsearch.c,amprint.c}.
//
// Per spec.md's design notes, page headers are never aliased onto raw
// bytes: leafHeader/intHeader are plain Go structs read and written through
// explicit little-endian accessor functions at fixed offsets.
package am

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jordy-godjo/pfstore/pf"
	"github.com/jordy-godjo/pfstore/pferr"
)

// Code is AM's closed error enumeration, numbered after AME_* in am.h.
type Code int

const (
	ErrInvalidAttrLength Code = -1
	ErrNotFound          Code = -2
	ErrPF                Code = -3
	ErrInternal          Code = -4
	ErrInvalidScanDesc   Code = -5
	ErrInvalidOpToScan   Code = -6
	ErrEOF               Code = -7
	ErrScanTabFull       Code = -8
	ErrInvalidAttrType   Code = -9
	ErrInvalidFD         Code = -10
	ErrInvalidValue      Code = -11
)

func (c Code) Error() string {
	switch c {
	case ErrInvalidAttrLength:
		return "am: invalid attribute length"
	case ErrNotFound:
		return "am: key not found in tree"
	case ErrPF:
		return "am: pf error"
	case ErrInternal:
		return "am: internal error"
	case ErrInvalidScanDesc:
		return "am: invalid scan descriptor"
	case ErrInvalidOpToScan:
		return "am: invalid operator to open scan"
	case ErrEOF:
		return "am: scan over"
	case ErrScanTabFull:
		return "am: scan table is full"
	case ErrInvalidAttrType:
		return "am: invalid attribute type"
	case ErrInvalidFD:
		return "am: invalid file descriptor"
	case ErrInvalidValue:
		return "am: invalid value"
	default:
		return fmt.Sprintf("am: unknown error %d", int(c))
	}
}

// Op is a scan predicate.
type Op int

const (
	ALL Op = iota
	EQ
	LT
	GT
	LE
	GE
	NE
)

// Scan table state (spec.md §4.3's "State machine for AM scans").
const (
	scanFirst = iota
	scanBusy
	scanOver
)

// rootPageNum is the invariant page number of the root: it never changes,
// even though the root's contents do on every split.
const rootPageNum = 0

// Byte-layout constants. These offsets are this implementation's own
// choice (not the C struct layout byte-for-byte); spec.md's design notes
// call for explicit accessors over raw bytes rather than aliasing a header
// struct, so there is no requirement that the wire layout match the
// original's padding.
const (
	leafHeaderSize = 22
	intHeaderSize  = 8
	cptrSize       = 4  // size of a child page pointer / rec-id
	headPtrSize    = 2  // size of a leaf entry's head-of-list pointer
	recIdNodeSize  = 6  // {rec_id int32, next int16}
	nullNode       = 0  // list terminator: offset 0 is always the page header
	nullPage       = -1 // sentinel for "no next leaf" / "no child"
)

type leafHeader struct {
	pageType      byte
	nextLeafPage  int32
	recIdPtr      int16
	keyPtr        int16
	freeListPtr   int16
	numInFreeList int16
	attrLength    int16
	numKeys       int16
	maxKeys       int16
}

func readLeafHeader(buf []byte) leafHeader {
	return leafHeader{
		pageType:      buf[0],
		nextLeafPage:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		recIdPtr:      int16(binary.LittleEndian.Uint16(buf[8:10])),
		keyPtr:        int16(binary.LittleEndian.Uint16(buf[10:12])),
		freeListPtr:   int16(binary.LittleEndian.Uint16(buf[12:14])),
		numInFreeList: int16(binary.LittleEndian.Uint16(buf[14:16])),
		attrLength:    int16(binary.LittleEndian.Uint16(buf[16:18])),
		numKeys:       int16(binary.LittleEndian.Uint16(buf[18:20])),
		maxKeys:       int16(binary.LittleEndian.Uint16(buf[20:22])),
	}
}

func writeLeafHeader(buf []byte, h leafHeader) {
	buf[0] = 'l'
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.nextLeafPage))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(h.recIdPtr))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(h.keyPtr))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(h.freeListPtr))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(h.numInFreeList))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(h.attrLength))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(h.numKeys))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(h.maxKeys))
}

type intHeader struct {
	pageType   byte
	numKeys    int16
	maxKeys    int16
	attrLength int16
}

func readIntHeader(buf []byte) intHeader {
	return intHeader{
		pageType:   buf[0],
		numKeys:    int16(binary.LittleEndian.Uint16(buf[2:4])),
		maxKeys:    int16(binary.LittleEndian.Uint16(buf[4:6])),
		attrLength: int16(binary.LittleEndian.Uint16(buf[6:8])),
	}
}

func writeIntHeader(buf []byte, h intHeader) {
	buf[0] = 'i'
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.numKeys))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.maxKeys))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.attrLength))
}

func recSize(attrLength int16) int { return int(attrLength) + headPtrSize }

func leafKeyAt(buf []byte, idx int, attrLength int16) []byte {
	off := leafHeaderSize + idx*recSize(attrLength)
	return buf[off : off+int(attrLength)]
}

func leafHeadAt(buf []byte, idx int, attrLength int16) int16 {
	off := leafHeaderSize + idx*recSize(attrLength) + int(attrLength)
	return int16(binary.LittleEndian.Uint16(buf[off : off+2]))
}

func writeLeafHeadAt(buf []byte, idx int, val int16, attrLength int16) {
	off := leafHeaderSize + idx*recSize(attrLength) + int(attrLength)
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(val))
}

func writeLeafKeyAt(buf []byte, idx int, key []byte, attrLength int16) {
	off := leafHeaderSize + idx*recSize(attrLength)
	copy(buf[off:off+int(attrLength)], key)
}

func readRecIdNode(buf []byte, offset int16) (recID int32, next int16) {
	recID = int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	next = int16(binary.LittleEndian.Uint16(buf[offset+4 : offset+6]))
	return
}

func writeRecIdNode(buf []byte, offset int16, recID int32, next int16) {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(recID))
	binary.LittleEndian.PutUint16(buf[offset+4:offset+6], uint16(next))
}

func entrySize(attrLength int) int { return attrLength + cptrSize }

func childPtrAt(buf []byte, idx int, attrLength int) int32 {
	off := intHeaderSize + idx*entrySize(attrLength)
	return int32(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func writeChildPtrAt(buf []byte, idx int, val int32, attrLength int) {
	off := intHeaderSize + idx*entrySize(attrLength)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(val))
}

func intKeyAt(buf []byte, idx int, attrLength int) []byte {
	off := intHeaderSize + cptrSize + idx*entrySize(attrLength)
	return buf[off : off+attrLength]
}

func writeIntKeyAt(buf []byte, idx int, key []byte, attrLength int) {
	off := intHeaderSize + cptrSize + idx*entrySize(attrLength)
	copy(buf[off:off+attrLength], key)
}

// allocRecIdNode reserves room for one {rec_id, next} node on a leaf,
// preferring a freed slot from the page's own free list before growing
// the bump-allocated region at recIdPtr, matching spec.md's "Free lists
// within pages" design note.
func allocRecIdNode(buf []byte, h *leafHeader) int16 {
	if h.freeListPtr != nullNode {
		offset := h.freeListPtr
		_, next := readRecIdNode(buf, offset)
		h.freeListPtr = next
		h.numInFreeList--
		return offset
	}
	h.recIdPtr -= recIdNodeSize
	return h.recIdPtr
}

// copyKeyList walks the rec-id chain rooted at srcHead in srcBuf and
// rebuilds an equivalent chain (same set of rec-ids, order unspecified) in
// dstBuf, allocating each node through dstHeader's own free list/bump
// pointer. Used when a key migrates to a different page during a split.
func copyKeyList(srcBuf []byte, srcHead int16, dstBuf []byte, dstHeader *leafHeader) int16 {
	var head int16 = nullNode
	node := srcHead
	for node != nullNode {
		recID, next := readRecIdNode(srcBuf, node)
		newOffset := allocRecIdNode(dstBuf, dstHeader)
		writeRecIdNode(dstBuf, newOffset, recID, head)
		head = newOffset
		node = next
	}
	return head
}

// compare returns <0, 0, >0 as a<b, a==b, a>b under the tree's attribute
// type, copying byte-addressed page data into aligned locals first (the
// page bytes themselves are never assumed to be aligned for a given type).
func (t *Tree) compare(a, b []byte) int {
	switch t.attrType {
	case 'i':
		av := int32(binary.LittleEndian.Uint32(a))
		bv := int32(binary.LittleEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case 'f':
		af := math.Float32frombits(binary.LittleEndian.Uint32(a))
		bf := math.Float32frombits(binary.LittleEndian.Uint32(b))
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	default: // 'c'
		n := t.attrLength
		return bytes.Compare(a[:n], b[:n])
	}
}

// calcMaxKeys computes the maximum keys an internal node (and, by this
// tree's convention, a leaf) can hold: spec.md §4.3's formula, rounded down
// to the nearest even number. A leaf also splits earlier, before reaching
// this count, once its keys and rec-id nodes no longer fit in the page.
func calcMaxKeys(pageDataSize int, attrLength int) int {
	raw := (pageDataSize - intHeaderSize - cptrSize) / (cptrSize + attrLength)
	if raw%2 != 0 {
		raw--
	}
	return raw
}

// stackFrame remembers an internal node visited on the way down so a split
// can walk back up without parent pointers.
type stackFrame struct {
	pageNum int
	index   int
}

// Tree is an open B+-tree index: the owning PF descriptor plus the small
// amount of session state (attribute shape, leftmost-leaf pointer,
// traversal stack, open scans) that the original kept as module globals
// (spec.md §9, "Global mutable state").
type Tree struct {
	pfm         *pf.Manager
	fd          int
	attrType    byte
	attrLength  int
	maxKeys     int
	leftPageNum int
	stack       []stackFrame
	scans       map[int]*scanState
	nextScanID  int
	maxScans    int
}

func indexFileName(base string, indexNo int) string {
	return fmt.Sprintf("%s.%d", base, indexNo)
}

func validateAttr(attrType byte, attrLength int) error {
	if attrType != 'i' && attrType != 'f' && attrType != 'c' {
		return ErrInvalidAttrType
	}
	if attrLength < 1 || attrLength > 255 {
		return ErrInvalidAttrLength
	}
	if attrType != 'c' && attrLength != 4 {
		return ErrInvalidAttrLength
	}
	return nil
}

// CreateIndex creates the file "<baseFileName>.<indexNo>" and initializes
// its root page (always page 0) as an empty leaf.
func CreateIndex(pfm *pf.Manager, baseFileName string, indexNo int, attrType byte, attrLength int) error {
	if err := validateAttr(attrType, attrLength); err != nil {
		return err
	}
	name := indexFileName(baseFileName, indexNo)
	if err := pfm.CreateFile(name); err != nil {
		return ErrPF
	}
	fd, err := pfm.OpenFile(name)
	if err != nil {
		return ErrPF
	}
	defer pfm.CloseFile(fd)

	pageNum, buf, err := pfm.AllocPage(fd)
	if err != nil {
		return ErrPF
	}
	maxKeys := calcMaxKeys(len(buf), attrLength)
	writeLeafHeader(buf, leafHeader{
		pageType:     'l',
		nextLeafPage: nullPage,
		recIdPtr:     int16(len(buf)),
		keyPtr:       leafHeaderSize,
		attrLength:   int16(attrLength),
		maxKeys:      int16(maxKeys),
	})
	if err := pfm.UnfixPage(fd, pageNum, true); err != nil {
		return ErrPF
	}
	return nil
}

// DestroyIndex removes the index file.
func DestroyIndex(pfm *pf.Manager, baseFileName string, indexNo int) error {
	if err := pfm.DestroyFile(indexFileName(baseFileName, indexNo)); err != nil {
		return ErrPF
	}
	return nil
}

// OpenIndex opens an existing index file and reads the root page to learn
// its attribute length and node capacity.
func OpenIndex(pfm *pf.Manager, baseFileName string, indexNo int, attrType byte, maxScans int) (*Tree, error) {
	if attrType != 'i' && attrType != 'f' && attrType != 'c' {
		return nil, ErrInvalidAttrType
	}
	name := indexFileName(baseFileName, indexNo)
	fd, err := pfm.OpenFile(name)
	if err != nil {
		return nil, ErrPF
	}
	buf, err := pfm.GetThisPage(fd, rootPageNum)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return nil, ErrPF
	}
	var attrLength, maxKeys int
	if buf[0] == 'l' {
		h := readLeafHeader(buf)
		attrLength, maxKeys = int(h.attrLength), int(h.maxKeys)
	} else {
		h := readIntHeader(buf)
		attrLength, maxKeys = int(h.attrLength), int(h.maxKeys)
	}
	if err := pfm.UnfixPage(fd, rootPageNum, false); err != nil {
		return nil, ErrPF
	}
	t := &Tree{
		pfm:        pfm,
		fd:         fd,
		attrType:   attrType,
		attrLength: attrLength,
		maxKeys:    maxKeys,
		scans:      make(map[int]*scanState),
		maxScans:   maxScans,
	}
	leftPageNum, err := t.findLeftmostLeaf()
	if err != nil {
		pfm.CloseFile(fd)
		return nil, err
	}
	t.leftPageNum = leftPageNum
	return t, nil
}

// findLeftmostLeaf descends from the root via child pointer 0 until it
// reaches a leaf, mirroring walkStats's recursive page walk. OpenIndex
// calls this on every open since leftPageNum only lives in memory and a
// tree that has split at least once may have relocated its leftmost leaf
// away from rootPageNum.
func (t *Tree) findLeftmostLeaf() (int, error) {
	pageNum := rootPageNum
	for {
		buf, err := t.pfm.GetThisPage(t.fd, pageNum)
		if err != nil && err != pferr.PFE_PAGEFIXED {
			return 0, ErrPF
		}
		isLeaf := buf[0] == 'l'
		var next int
		if !isLeaf {
			next = int(childPtrAt(buf, 0, t.attrLength))
		}
		if err := t.pfm.UnfixPage(t.fd, pageNum, false); err != nil {
			return 0, ErrPF
		}
		if isLeaf {
			return pageNum, nil
		}
		pageNum = next
	}
}

// Close closes the underlying PF file.
func (t *Tree) Close() error {
	return t.pfm.CloseFile(t.fd)
}

func (t *Tree) emptyStack() {
	t.stack = t.stack[:0]
}
