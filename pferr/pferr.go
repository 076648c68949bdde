// Package pferr defines the PF layer's small closed error enumeration
// (mirroring the PFE_* #define table of the original C sources). The rm and
// am layers keep their own Code types with the same shape: a negative int
// that also satisfies the error interface, so callers can do both plain
// `if err != nil` and, where the specific code matters, an `errors.As`
// against *pferr.Code.
package pferr

import "fmt"

// Code is a layer-local error code. Zero means no error; codes are always
// negative, following the PFE_OK == 0 / PFE_* < 0 convention of pf.h.
type Code int

// Error implements the error interface by looking the code up in the
// message table it was constructed with.
func (c Code) Error() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return fmt.Sprintf("pferr: unknown code %d", int(c))
}

var messages = map[Code]string{}

// Register adds a code/message pair to the lookup table that Code.Error()
// consults. This package's init() registers the PFE_* codes; registering a
// code twice panics.
func Register(c Code, msg string) {
	if _, exists := messages[c]; exists {
		panic(fmt.Sprintf("pferr: code %d already registered", int(c)))
	}
	messages[c] = msg
}

// PF error codes, mirroring pf.h's PFE_* enum exactly (value-for-value).
const (
	OK                 Code = 0
	PFE_NOMEM          Code = -1
	PFE_NOBUF          Code = -2
	PFE_INCOMPLETEREAD Code = -3
	PFE_INCOMPLETEWRITE Code = -4
	PFE_HDRREAD        Code = -5
	PFE_HDRWRITE       Code = -6
	PFE_INVALIDPAGE    Code = -7
	PFE_FILEOPEN       Code = -8
	PFE_SEEK           Code = -9
	PFE_FTABFULL       Code = -10
	PFE_FD             Code = -11
	PFE_PAGEFIXED      Code = -12
	PFE_PAGENOTINBUF   Code = -13
	PFE_PAGEUNFIXED    Code = -14
	PFE_EOF            Code = -15
	PFE_PAGEFREE       Code = -16
	PFE_PAGEINBUF      Code = -17
	PFE_HASHNOTFOUND   Code = -18
	PFE_HASHPAGEEXIST  Code = -19
)

func init() {
	Register(OK, "no error")
	Register(PFE_NOMEM, "insufficient memory")
	Register(PFE_NOBUF, "no buffer space available")
	Register(PFE_INCOMPLETEREAD, "incomplete read of page")
	Register(PFE_INCOMPLETEWRITE, "incomplete write of page")
	Register(PFE_HDRREAD, "error reading file header")
	Register(PFE_HDRWRITE, "error writing file header")
	Register(PFE_INVALIDPAGE, "invalid page number")
	Register(PFE_FILEOPEN, "error opening file")
	Register(PFE_SEEK, "error seeking within file")
	Register(PFE_FTABFULL, "file table is full")
	Register(PFE_FD, "invalid file descriptor")
	Register(PFE_PAGEFIXED, "page already fixed in buffer")
	Register(PFE_PAGENOTINBUF, "page is not in the buffer pool")
	Register(PFE_PAGEUNFIXED, "page already unfixed")
	Register(PFE_EOF, "end of file reached")
	Register(PFE_PAGEFREE, "page is on the free list")
	Register(PFE_PAGEINBUF, "page still in buffer pool")
	Register(PFE_HASHNOTFOUND, "page not found in buffer hash table")
	Register(PFE_HASHPAGEEXIST, "page already exists in buffer hash table")
}
