// Package pf is the Paged File facade: it owns the open-file table, each
// open file's header (first_free, num_pages), and composes disk (raw page
// I/O) with buffer (the pin/unfix frame cache) into the operations spec.md
// §4.1 names. It plays the role pf.c plays over buf.c in the original
// sources, but as an explicit owning struct rather than process-wide
// globals (spec.md §9, "Global mutable state").
package pf

import (
	"encoding/binary"
	"fmt"

	"github.com/jordy-godjo/pfstore/buffer"
	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/disk"
	"github.com/jordy-godjo/pfstore/pferr"
)

// used marks a page as not on the free list; listEnd terminates the
// free-page chain. Both are negative, so neither can collide with a real
// page number, and they differ from each other so that the last page on the
// free list (whose next_free is listEnd) is never mistaken for a used page.
var (
	used    int32 = -2
	listEnd int32 = -1
)

type openFile struct {
	name       string
	file       *disk.File
	firstFree  int32
	numPages   int32
	hdrChanged bool
}

// Manager is the single owning context for the PF layer: the buffer pool,
// the open-file table and the per-file headers. Construct one with
// NewManager and pass it explicitly to rm/am rather than reaching for a
// package-level singleton.
type Manager struct {
	cfg   *config.Config
	pool  *buffer.Pool
	files map[int]*openFile
}

// NewManager prepares PF's in-memory state: the buffer pool, the (empty)
// file table and the stats counters. Calling it more than once per process
// is harmless (init() is documented as idempotent in spec.md §4.1); each
// call simply yields a fresh, independent Manager.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:   cfg,
		pool:  buffer.NewPool(cfg),
		files: make(map[int]*openFile),
	}
}

// CreateFile creates name exclusively with a zeroed header.
func (m *Manager) CreateFile(name string) error {
	if err := disk.Create(name); err != nil {
		return fmt.Errorf("pf: create %s: %w", name, err)
	}
	return nil
}

// DestroyFile removes name. It fails if the file is currently open.
func (m *Manager) DestroyFile(name string) error {
	for _, of := range m.files {
		if of.name == name {
			return pferr.PFE_FILEOPEN
		}
	}
	return disk.Destroy(name)
}

// OpenFile opens name, reads and caches its header, and returns a file
// descriptor. A file may be opened more than once; each call gets its own
// fd and its own cached header.
func (m *Manager) OpenFile(name string) (int, error) {
	if len(m.files) >= m.cfg.FileTableSize {
		return -1, pferr.PFE_FTABFULL
	}
	f, err := disk.Open(name, m.cfg.PageSize)
	if err != nil {
		return -1, pferr.PFE_FILEOPEN
	}
	firstFree, numPages, err := f.ReadHeader()
	if err != nil {
		f.Close()
		return -1, pferr.PFE_HDRREAD
	}
	fd := m.freeFD()
	m.files[fd] = &openFile{name: name, file: f, firstFree: firstFree, numPages: numPages}
	return fd, nil
}

func (m *Manager) freeFD() int {
	for fd := 0; fd < m.cfg.FileTableSize; fd++ {
		if _, ok := m.files[fd]; !ok {
			return fd
		}
	}
	return len(m.files)
}

// CloseFile flushes and releases every frame belonging to fd, fails with
// PFE_PAGEFIXED (doing no work) if any of them is still pinned, writes the
// header back only if it changed during the session, and closes the OS
// handle.
func (m *Manager) CloseFile(fd int) error {
	of, ok := m.files[fd]
	if !ok {
		return pferr.PFE_FD
	}
	if err := m.pool.ReleaseFile(fd, m.writeFunc(fd)); err != nil {
		return err
	}
	if of.hdrChanged {
		if err := of.file.WriteHeader(of.firstFree, of.numPages); err != nil {
			return pferr.PFE_HDRWRITE
		}
	}
	if err := of.file.Close(); err != nil {
		return err
	}
	delete(m.files, fd)
	return nil
}

func (m *Manager) readFunc(fd int) buffer.ReadFunc {
	return func(_ int, pageNum int) ([]byte, error) {
		of := m.files[fd]
		return of.file.ReadPage(pageNum)
	}
}

func (m *Manager) writeFunc(fd int) buffer.WriteFunc {
	return func(_ int, pageNum int, data []byte) error {
		of := m.files[fd]
		return of.file.WritePage(pageNum, data)
	}
}

func (m *Manager) pin(fd, pageNum int) (*buffer.Frame, error) {
	return m.pool.Get(fd, pageNum, m.readFunc(fd), m.writeFunc(fd))
}

// GetFirstPage pins and returns the first used (non-free-list) page in
// ascending page-number order.
func (m *Manager) GetFirstPage(fd int) (int, []byte, error) {
	return m.GetNextPage(fd, -1)
}

// GetNextPage pins and returns the next used page strictly after pageNum.
// Free-list pages encountered along the way are skipped and unfixed before
// the scan continues.
func (m *Manager) GetNextPage(fd int, pageNum int) (int, []byte, error) {
	of, ok := m.files[fd]
	if !ok {
		return -1, nil, pferr.PFE_FD
	}
	for p := pageNum + 1; p < int(of.numPages); p++ {
		frame, err := m.pin(fd, p)
		if err != nil && err != pferr.PFE_PAGEFIXED {
			return -1, nil, err
		}
		if nextFreeOf(frame) != used {
			m.pool.Unfix(fd, p, false)
			continue
		}
		return p, frame.Data[4:], err
	}
	return -1, nil, pferr.PFE_EOF
}

// GetThisPage pins and returns a specific page. It fails with
// PFE_INVALIDPAGE if the page is on the free list (unfixing it first) and
// with PFE_PAGEFIXED if the page was already pinned — in the latter case
// the buffer pointer is still returned, matching the contract spec.md §9
// calls out explicitly as an open question resolved in favor of the
// original behavior (downstream AM code relies on it).
func (m *Manager) GetThisPage(fd int, pageNum int) ([]byte, error) {
	of, ok := m.files[fd]
	if !ok {
		return nil, pferr.PFE_FD
	}
	if pageNum < 0 || pageNum >= int(of.numPages) {
		return nil, pferr.PFE_INVALIDPAGE
	}
	frame, err := m.pin(fd, pageNum)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return nil, err
	}
	if nextFreeOf(frame) != used {
		m.pool.Unfix(fd, pageNum, false)
		return nil, pferr.PFE_INVALIDPAGE
	}
	return frame.Data[4:], err
}

// AllocPage returns a pinned page: the head of the free list if non-empty,
// otherwise a brand-new page extending the file. Either way next_free is
// set to used and the header is marked changed.
func (m *Manager) AllocPage(fd int) (int, []byte, error) {
	of, ok := m.files[fd]
	if !ok {
		return -1, nil, pferr.PFE_FD
	}
	if of.firstFree != listEnd {
		pageNum := int(of.firstFree)
		frame, err := m.pin(fd, pageNum)
		if err != nil && err != pferr.PFE_PAGEFIXED {
			return -1, nil, err
		}
		of.firstFree = int32(binary.LittleEndian.Uint32(frame.Data[0:4]))
		of.hdrChanged = true
		binary.LittleEndian.PutUint32(frame.Data[0:4], uint32(used))
		frame.Dirty = true
		return pageNum, frame.Data[4:], nil
	}

	pageNum := int(of.numPages)
	if _, err := of.file.AppendZeroPage(of.numPages); err != nil {
		return -1, nil, err
	}
	of.numPages++
	of.hdrChanged = true
	frame, err := m.pool.Alloc(fd, pageNum, m.cfg.PageSize, m.writeFunc(fd))
	if err != nil {
		return -1, nil, err
	}
	binary.LittleEndian.PutUint32(frame.Data[0:4], uint32(used))
	frame.Dirty = true
	return pageNum, frame.Data[4:], nil
}

// DisposePage pins pageNum, asserts it is used, links it onto the head of
// the free list, and unfixes it dirty.
func (m *Manager) DisposePage(fd int, pageNum int) error {
	of, ok := m.files[fd]
	if !ok {
		return pferr.PFE_FD
	}
	frame, err := m.pin(fd, pageNum)
	if err != nil && err != pferr.PFE_PAGEFIXED {
		return err
	}
	if nextFreeOf(frame) != used {
		m.pool.Unfix(fd, pageNum, false)
		return pferr.PFE_PAGEFREE
	}
	binary.LittleEndian.PutUint32(frame.Data[0:4], uint32(of.firstFree))
	of.firstFree = int32(pageNum)
	of.hdrChanged = true
	return m.pool.Unfix(fd, pageNum, true)
}

// UnfixPage unpins pageNum, ORing in dirty. Absent (fd,page) pairs are
// tolerated as success to keep error-unwinding idempotent.
func (m *Manager) UnfixPage(fd int, pageNum int, dirty bool) error {
	if _, ok := m.files[fd]; !ok {
		return pferr.PFE_FD
	}
	return m.pool.Unfix(fd, pageNum, dirty)
}

// WriteFileTag stores a caller-opaque identity tag (disk.TagSize bytes) in
// fd's header, for use by layers above PF that need a stable file-identity
// value (SPEC_FULL.md §5.2).
func (m *Manager) WriteFileTag(fd int, tag []byte) error {
	of, ok := m.files[fd]
	if !ok {
		return pferr.PFE_FD
	}
	return of.file.WriteTag(tag)
}

// FileTag returns fd's caller-opaque identity tag.
func (m *Manager) FileTag(fd int) ([]byte, error) {
	of, ok := m.files[fd]
	if !ok {
		return nil, pferr.PFE_FD
	}
	return of.file.ReadTag()
}

// SetStrategy selects the buffer pool's eviction order.
func (m *Manager) SetStrategy(policy buffer.Policy) {
	m.pool.SetStrategy(policy)
}

// ResetStats zeroes the logical-read, physical-read and physical-write
// counters.
func (m *Manager) ResetStats() {
	m.pool.ResetStats()
}

// GetStats returns the current counters.
func (m *Manager) GetStats() buffer.Stats {
	return m.pool.Stats()
}

func nextFreeOf(frame *buffer.Frame) int32 {
	return int32(binary.LittleEndian.Uint32(frame.Data[0:4]))
}
