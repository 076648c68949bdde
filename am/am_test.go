package am

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/pf"
)

func intKey(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func newTestTree(t *testing.T) (*Tree, *pf.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "idx")
	cfg := config.NewConfigWithParams(dir, 128, 50)
	pfm := pf.NewManager(cfg)
	if err := CreateIndex(pfm, base, 0, 'i', 4); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	tree, err := OpenIndex(pfm, base, 0, 'i', 10)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	return tree, pfm, base
}

func TestCreateOpenInsertFind(t *testing.T) {
	tree, _, _ := newTestTree(t)
	defer tree.Close()

	if err := tree.InsertEntry(intKey(42), 100); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	id, err := tree.OpenScan(EQ, intKey(42))
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	defer tree.CloseScan(id)

	rec, err := tree.FindNextEntry(id)
	if err != nil {
		t.Fatalf("FindNextEntry: %v", err)
	}
	if rec != 100 {
		t.Fatalf("expected recID 100, got %d", rec)
	}
	if _, err := tree.FindNextEntry(id); err != ErrEOF {
		t.Fatalf("expected ErrEOF after one match, got %v", err)
	}
}

func TestInsertManyKeysSurviveSplitsInSortedOrder(t *testing.T) {
	tree, _, _ := newTestTree(t)
	defer tree.Close()

	const n = 120
	for i := 0; i < n; i++ {
		if err := tree.InsertEntry(intKey(int32(i)), int32(i)); err != nil {
			t.Fatalf("InsertEntry(%d): %v", i, err)
		}
	}

	id, err := tree.OpenScan(ALL, nil)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	defer tree.CloseScan(id)

	var last int32 = -1
	count := 0
	for {
		rec, err := tree.FindNextEntry(id)
		if err == ErrEOF {
			break
		}
		if err != nil {
			t.Fatalf("FindNextEntry: %v", err)
		}
		if rec <= last {
			t.Fatalf("scan out of order: %d after %d", rec, last)
		}
		last = rec
		count++
	}
	if count != n {
		t.Fatalf("expected %d entries, scanned %d", n, count)
	}

	stats, err := tree.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LeafCount < 2 {
		t.Fatalf("expected at least one split to have occurred, LeafCount=%d", stats.LeafCount)
	}
	if stats.KeyCount != n {
		t.Fatalf("expected %d keys, got %d", n, stats.KeyCount)
	}
}

func TestDuplicateKeyCollectsAllRecIDs(t *testing.T) {
	tree, _, _ := newTestTree(t)
	defer tree.Close()

	for _, rec := range []int32{1, 2, 3} {
		if err := tree.InsertEntry(intKey(7), rec); err != nil {
			t.Fatalf("InsertEntry: %v", err)
		}
	}

	id, err := tree.OpenScan(EQ, intKey(7))
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	defer tree.CloseScan(id)

	seen := map[int32]bool{}
	for {
		rec, err := tree.FindNextEntry(id)
		if err == ErrEOF {
			break
		}
		if err != nil {
			t.Fatalf("FindNextEntry: %v", err)
		}
		seen[rec] = true
	}
	for _, want := range []int32{1, 2, 3} {
		if !seen[want] {
			t.Fatalf("expected recID %d among matches, got %v", want, seen)
		}
	}
}

func TestDeleteEntryRemovesOnlyThatRecID(t *testing.T) {
	tree, _, _ := newTestTree(t)
	defer tree.Close()

	tree.InsertEntry(intKey(5), 1)
	tree.InsertEntry(intKey(5), 2)

	if err := tree.DeleteEntry(intKey(5), 1); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := tree.DeleteEntry(intKey(5), 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	id, _ := tree.OpenScan(EQ, intKey(5))
	defer tree.CloseScan(id)
	rec, err := tree.FindNextEntry(id)
	if err != nil {
		t.Fatalf("FindNextEntry: %v", err)
	}
	if rec != 2 {
		t.Fatalf("expected remaining recID 2, got %d", rec)
	}
	if _, err := tree.FindNextEntry(id); err != ErrEOF {
		t.Fatalf("expected only one survivor, got another match")
	}
}

func TestScanPredicatesFilterCorrectly(t *testing.T) {
	tree, _, _ := newTestTree(t)
	defer tree.Close()

	for i := int32(0); i < 20; i++ {
		tree.InsertEntry(intKey(i), i)
	}

	count := func(op Op, value []byte) int {
		id, err := tree.OpenScan(op, value)
		if err != nil {
			t.Fatalf("OpenScan: %v", err)
		}
		defer tree.CloseScan(id)
		n := 0
		for {
			if _, err := tree.FindNextEntry(id); err != nil {
				if err == ErrEOF {
					break
				}
				t.Fatalf("FindNextEntry: %v", err)
			}
			n++
		}
		return n
	}

	if got := count(LT, intKey(10)); got != 10 {
		t.Fatalf("LT 10: expected 10, got %d", got)
	}
	if got := count(GE, intKey(10)); got != 10 {
		t.Fatalf("GE 10: expected 10, got %d", got)
	}
	if got := count(NE, intKey(10)); got != 19 {
		t.Fatalf("NE 10: expected 19, got %d", got)
	}
}

func TestOpenScanFailsWhenTableFull(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "idx")
	cfg := config.NewConfigWithParams(dir, 128, 50)
	pfm := pf.NewManager(cfg)
	CreateIndex(pfm, base, 0, 'i', 4)
	tree, err := OpenIndex(pfm, base, 0, 'i', 2)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer tree.Close()

	if _, err := tree.OpenScan(ALL, nil); err != nil {
		t.Fatalf("OpenScan 1: %v", err)
	}
	if _, err := tree.OpenScan(ALL, nil); err != nil {
		t.Fatalf("OpenScan 2: %v", err)
	}
	if _, err := tree.OpenScan(ALL, nil); err != ErrScanTabFull {
		t.Fatalf("expected ErrScanTabFull, got %v", err)
	}
}
