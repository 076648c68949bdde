package pf

import (
	"path/filepath"
	"testing"

	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/pferr"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig(dir)
	cfg.MaxBuffers = 20
	return NewManager(cfg), filepath.Join(dir, "Data.bin")
}

func TestAllocWriteCloseReopenGetThisPage(t *testing.T) {
	m, path := newTestManager(t)
	if err := m.CreateFile(path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fd, err := m.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	pageNum, buf, err := m.AllocPage(fd)
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	copy(buf, []byte("hello world"))
	if err := m.UnfixPage(fd, pageNum, true); err != nil {
		t.Fatalf("UnfixPage: %v", err)
	}
	if err := m.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	fd2, err := m.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := m.GetThisPage(fd2, pageNum)
	if err != nil {
		t.Fatalf("GetThisPage: %v", err)
	}
	if string(got[:11]) != "hello world" {
		t.Fatalf("unexpected data: %q", got[:11])
	}
	if err := m.UnfixPage(fd2, pageNum, false); err != nil {
		t.Fatalf("UnfixPage: %v", err)
	}
	if err := m.CloseFile(fd2); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
}

func TestDisposeThenAllocReturnsSamePage(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)

	p0, _, _ := m.AllocPage(fd)
	m.UnfixPage(fd, p0, true)
	p1, _, _ := m.AllocPage(fd)
	m.UnfixPage(fd, p1, true)

	if err := m.DisposePage(fd, p0); err != nil {
		t.Fatalf("DisposePage: %v", err)
	}

	p2, _, err := m.AllocPage(fd)
	if err != nil {
		t.Fatalf("AllocPage after dispose: %v", err)
	}
	if p2 != p0 {
		t.Fatalf("expected disposed page %d to be reused, got %d", p0, p2)
	}
	m.UnfixPage(fd, p2, true)
}

func TestGetThisPageOnFreeListPageFails(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)

	p0, _, _ := m.AllocPage(fd)
	m.UnfixPage(fd, p0, true)
	if err := m.DisposePage(fd, p0); err != nil {
		t.Fatalf("DisposePage: %v", err)
	}

	if _, err := m.GetThisPage(fd, p0); err != pferr.PFE_INVALIDPAGE {
		t.Fatalf("expected PFE_INVALIDPAGE for free-list page, got %v", err)
	}
}

func TestUnfixAbsentPageIsIdempotent(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)
	if err := m.UnfixPage(fd, 0, true); err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}
}

func TestCloseFileFailsWhenPagePinned(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)
	m.AllocPage(fd)
	if err := m.CloseFile(fd); err != pferr.PFE_PAGEFIXED {
		t.Fatalf("expected PFE_PAGEFIXED, got %v", err)
	}
}

func TestGetFirstAndNextPageSkipFreeListPages(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)

	var pages []int
	for i := 0; i < 5; i++ {
		p, _, _ := m.AllocPage(fd)
		m.UnfixPage(fd, p, true)
		pages = append(pages, p)
	}
	if err := m.DisposePage(fd, pages[2]); err != nil {
		t.Fatalf("DisposePage: %v", err)
	}

	var seen []int
	p, _, err := m.GetFirstPage(fd)
	for err == nil {
		seen = append(seen, p)
		m.UnfixPage(fd, p, false)
		p, _, err = m.GetNextPage(fd, p)
	}
	if err != pferr.PFE_EOF {
		t.Fatalf("expected EOF at end of scan, got %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 used pages, got %d: %v", len(seen), seen)
	}
	for _, s := range seen {
		if s == pages[2] {
			t.Fatalf("scan returned disposed page %d", pages[2])
		}
	}
}

func TestDestroyFileFailsWhileOpen(t *testing.T) {
	m, path := newTestManager(t)
	m.CreateFile(path)
	fd, _ := m.OpenFile(path)
	defer m.CloseFile(fd)
	if err := m.DestroyFile(path); err != pferr.PFE_FILEOPEN {
		t.Fatalf("expected PFE_FILEOPEN, got %v", err)
	}
}
