// Package disk implements the lowest layer of the paged-file stack: raw,
// stateless I/O of a single OS file laid out as a small header followed by
// a contiguous sequence of fixed-size pages. It knows nothing about
// buffering, pinning or free lists — that bookkeeping lives in pf. This
// mirrors the split the original C sources draw between pf.c (file table,
// free list, header) and the read/write syscalls PFreadfcn/PFwritefcn
// perform directly via lseek+read/write.
package disk

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/jordy-godjo/pfstore/config"
)

// TagSize is the size of the caller-opaque identity tag reserved in the
// file header, wide enough for a uuid.UUID (SPEC_FULL.md §5.2, "File
// identity tag").
const TagSize = 16

// HeaderSize is the on-disk size of the file header: first_free, num_pages
// (spec.md §6) plus TagSize bytes of caller-reserved space.
const HeaderSize = 8 + TagSize

// ErrDataTooLarge is returned by WritePage when the caller-supplied buffer
// does not fit within one page.
var ErrDataTooLarge = errors.New("disk: page data exceeds page size")

// File is a single open OS file storing pages. It holds no free-list or
// pin state; callers (pf.Manager) are responsible for all such bookkeeping.
type File struct {
	f        *os.File
	pageSize int
}

// Create creates path exclusively and writes a zeroed header (first_free =
// LIST_END, num_pages = 0). It fails if the file already exists.
func Create(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	hdr := make([]byte, HeaderSize)
	listEnd := int32(-1)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(listEnd)) // first_free = LIST_END
	binary.LittleEndian.PutUint32(hdr[4:8], 0)               // num_pages = 0
	if _, err := f.WriteAt(hdr, 0); err != nil {
		return err
	}
	return nil
}

// Destroy removes path. Callers must ensure the file is not open.
func Destroy(path string) error {
	return os.Remove(path)
}

// Open opens an existing file for page I/O at the given page size.
func Open(path string, pageSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, pageSize: pageSize}, nil
}

// Close closes the underlying OS handle.
func (file *File) Close() error {
	return file.f.Close()
}

// ReadHeader reads first_free and num_pages, leaving the tag region alone.
func (file *File) ReadHeader() (firstFree int32, numPages int32, err error) {
	buf := make([]byte, HeaderSize)
	if _, err := file.f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return 0, 0, err
	}
	firstFree = int32(binary.LittleEndian.Uint32(buf[0:4]))
	numPages = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return firstFree, numPages, nil
}

// WriteHeader overwrites first_free and num_pages without touching the tag
// region (callers write the tag separately via WriteTag).
func (file *File) WriteHeader(firstFree, numPages int32) error {
	tag, err := file.ReadTag()
	if err != nil {
		return err
	}
	return file.writeHeaderAndTag(firstFree, numPages, tag)
}

// ReadTag returns the TagSize bytes of caller-opaque identity data stored
// in the header.
func (file *File) ReadTag() ([]byte, error) {
	buf := make([]byte, TagSize)
	if _, err := file.f.ReadAt(buf, 8); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// WriteTag stores a TagSize-byte caller-opaque identity value in the
// header, preserving first_free/num_pages.
func (file *File) WriteTag(tag []byte) error {
	firstFree, numPages, err := file.ReadHeader()
	if err != nil {
		return err
	}
	return file.writeHeaderAndTag(firstFree, numPages, tag)
}

func (file *File) writeHeaderAndTag(firstFree, numPages int32, tag []byte) error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(firstFree))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(numPages))
	copy(buf[8:8+TagSize], tag)
	_, err := file.f.WriteAt(buf, 0)
	return err
}

// offsetOf returns the byte offset of pageNum's first byte, immediately
// after the file header, mirroring pf.c's PFreadfcn/PFwritefcn addressing
// (`pagenum*sizeof(PFfpage)+PF_HDR_SIZE`).
func (file *File) offsetOf(pageNum int) int64 {
	return int64(HeaderSize) + int64(pageNum)*int64(file.pageSize)
}

// ReadPage reads exactly one page's worth of bytes at pageNum.
func (file *File) ReadPage(pageNum int) ([]byte, error) {
	buf := make([]byte, file.pageSize)
	_, err := file.f.ReadAt(buf, file.offsetOf(pageNum))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// WritePage writes exactly one page's worth of bytes at pageNum, extending
// the file if necessary.
func (file *File) WritePage(pageNum int, data []byte) error {
	if len(data) > file.pageSize {
		return ErrDataTooLarge
	}
	buf := data
	if len(buf) != file.pageSize {
		buf = make([]byte, file.pageSize)
		copy(buf, data)
	}
	_, err := file.f.WriteAt(buf, file.offsetOf(pageNum))
	return err
}

// AppendZeroPage extends the file by one freshly zeroed page and returns its
// page number, used when the free list is empty and the file must grow.
func (file *File) AppendZeroPage(numPages int32) (int, error) {
	pageNum := int(numPages)
	if err := file.WritePage(pageNum, make([]byte, file.pageSize)); err != nil {
		return 0, err
	}
	return pageNum, nil
}

// PageDataSize returns the number of caller-owned bytes per page, i.e. the
// page size minus the leading next_free field PF reserves for the free-list
// chain (spec.md §3, "File page (on disk)").
func PageDataSize(pageSize int) int {
	return pageSize - 4
}

// DefaultPageSize mirrors config.NewConfig's default and is used by callers
// that want a File without threading a *config.Config through.
func DefaultPageSize(cfg *config.Config) int {
	if cfg == nil || cfg.PageSize == 0 {
		return 4096
	}
	return cfg.PageSize
}
