package rm

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/pf"
)

func newTestHandle(t *testing.T) *FileHandle {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "records.rm")
	cfg := config.NewConfig(dir)
	cfg.MaxBuffers = 20
	pfm := pf.NewManager(cfg)
	if err := CreateFile(pfm, path); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fh, err := OpenFile(pfm, path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return fh
}

func TestInsertThenGetRoundTrips(t *testing.T) {
	fh := newTestHandle(t)
	defer fh.Close()

	rid, err := fh.InsertRec([]byte("hello record"))
	if err != nil {
		t.Fatalf("InsertRec: %v", err)
	}
	got, err := fh.GetRec(rid)
	if err != nil {
		t.Fatalf("GetRec: %v", err)
	}
	if string(got) != "hello record" {
		t.Fatalf("expected %q, got %q", "hello record", got)
	}
}

func TestDeleteRecTombstonesAndGetFails(t *testing.T) {
	fh := newTestHandle(t)
	defer fh.Close()

	rid, err := fh.InsertRec([]byte("to be deleted"))
	if err != nil {
		t.Fatalf("InsertRec: %v", err)
	}
	if err := fh.DeleteRec(rid); err != nil {
		t.Fatalf("DeleteRec: %v", err)
	}
	if _, err := fh.GetRec(rid); err != ErrRecordDeleted {
		t.Fatalf("expected ErrRecordDeleted, got %v", err)
	}
	if err := fh.DeleteRec(rid); err != ErrRecordDeleted {
		t.Fatalf("expected second delete to report ErrRecordDeleted, got %v", err)
	}
}

func TestScanSkipsTombstonesAndPreservesOrder(t *testing.T) {
	fh := newTestHandle(t)
	defer fh.Close()

	const n = 50
	rids := make([]RID, n)
	for i := 0; i < n; i++ {
		length := 10 + (i % 50)
		data := make([]byte, length)
		for j := range data {
			data[j] = byte(i)
		}
		rid, err := fh.InsertRec(data)
		if err != nil {
			t.Fatalf("InsertRec(%d): %v", i, err)
		}
		rids[i] = rid
	}
	for i := 0; i < n; i += 3 {
		if err := fh.DeleteRec(rids[i]); err != nil {
			t.Fatalf("DeleteRec(%d): %v", i, err)
		}
	}

	sc := fh.ScanOpen()
	defer sc.Close()
	count := 0
	last := -1
	for {
		rid, data, err := sc.Next()
		if err == ErrEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		// every payload byte holds the record's insertion index
		i := int(data[0])
		if i%3 == 0 {
			t.Fatalf("scan returned deleted record %d", i)
		}
		if i <= last {
			t.Fatalf("scan out of order: record %d after %d", i, last)
		}
		if rid != rids[i] {
			t.Fatalf("record %d: expected RID %+v, got %+v", i, rids[i], rid)
		}
		last = i
		count++
	}
	want := n - (n+2)/3
	if count != want {
		t.Fatalf("expected %d live records, got %d", want, count)
	}
}

func TestGetSpaceUtilization(t *testing.T) {
	fh := newTestHandle(t)
	defer fh.Close()

	for i := 0; i < 10; i++ {
		if _, err := fh.InsertRec([]byte(fmt.Sprintf("rec-%02d", i))); err != nil {
			t.Fatalf("InsertRec: %v", err)
		}
	}
	u, err := fh.GetSpaceUtilization(4096)
	if err != nil {
		t.Fatalf("GetSpaceUtilization: %v", err)
	}
	if u.Pages == 0 {
		t.Fatalf("expected at least one page")
	}
	if u.RecordBytes != 10*len("rec-00") {
		t.Fatalf("expected %d record bytes, got %d", 10*len("rec-00"), u.RecordBytes)
	}
}

func TestFileTagIsStableAndUnique(t *testing.T) {
	fh1 := newTestHandle(t)
	defer fh1.Close()
	fh2 := newTestHandle(t)
	defer fh2.Close()

	tag1, err := fh1.Tag()
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	tag2, err := fh2.Tag()
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if tag1 == tag2 {
		t.Fatalf("expected distinct tags for distinct files, got %v twice", tag1)
	}
	again, err := fh1.Tag()
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if again != tag1 {
		t.Fatalf("expected stable tag, got %v then %v", tag1, again)
	}
}

func TestGetRecInvalidRID(t *testing.T) {
	fh := newTestHandle(t)
	defer fh.Close()

	rid, err := fh.InsertRec([]byte("x"))
	if err != nil {
		t.Fatalf("InsertRec: %v", err)
	}
	bad := RID{PageNum: rid.PageNum, SlotNum: rid.SlotNum + 5}
	if _, err := fh.GetRec(bad); err != ErrInvalidRID {
		t.Fatalf("expected ErrInvalidRID, got %v", err)
	}
}
