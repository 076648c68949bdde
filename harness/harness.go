// Package harness compares two ways of building a secondary index: bulk
// loading from a pre-sorted data file versus inserting records one at a
// time in random key order, reporting the PF layer's logical/physical I/O
// counters for each. Grounded directly on
// original_source/amlayer/test_objective3.c's method1_BuildFromExisting /
// method2_InsertOneByOne.
package harness

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/jordy-godjo/pfstore/am"
	"github.com/jordy-godjo/pfstore/buffer"
	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/pf"
	"github.com/jordy-godjo/pfstore/rm"
)

// studentNameSize is the fixed width, in bytes, of the name field in a
// student record. The record layout is a 4-byte little-endian int32 id
// (attrType 'i', attrLength 4 — the same vocabulary am.CreateIndex uses
// for the secondary index built over it) followed by a zero-padded name,
// replacing test_objective3.c's ad hoc "Student_Name_%d" sprintf/sscanf
// record with a fixed-width field this module's own RM/AM layers already
// speak natively.
const studentNameSize = 24
const studentRecordSize = 4 + studentNameSize

func encodeStudentRecord(key int) []byte {
	buf := make([]byte, studentRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(key)))
	name := []byte(fmt.Sprintf("Student_Name_%d", key))
	if len(name) > studentNameSize {
		name = name[:studentNameSize]
	}
	copy(buf[4:], name)
	return buf
}

func decodeStudentKey(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("record too short: %d bytes", len(data))
	}
	return int(int32(binary.LittleEndian.Uint32(data[0:4]))), nil
}

// PackRID folds an RM record id into a single int32, matching
// test_objective3.c's pack_rid: (pageNum<<16)|(slotNum&0xFFFF).
func PackRID(rid rm.RID) int32 {
	return int32(rid.PageNum<<16) | int32(rid.SlotNum&0xFFFF)
}

// UnpackRID is pack_rid's inverse.
func UnpackRID(packed int32) rm.RID {
	return rm.RID{PageNum: int(packed >> 16), SlotNum: int(packed & 0xFFFF)}
}

func keyBytes(key int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(int32(key)))
	return b
}

// MethodResult captures one run's timing and PF I/O counters, plus the
// resulting index's shape.
type MethodResult struct {
	Name          string
	Elapsed       time.Duration
	Stats         buffer.Stats
	Tree          am.TreeStats
	RecordsLoaded int
}

const (
	attrType   = 'i'
	attrLength = 4
)

// BuildFromExisting populates dataFile with numRecords sorted-key records,
// then builds a fresh index by scanning that file in order — the "bulk
// load" method. Stats are reset immediately before the timed section
// begins, matching PF_ResetStats()'s placement in the original.
func BuildFromExisting(pfm *pf.Manager, dataFile, indexBase string, numRecords int) (MethodResult, error) {
	if err := rm.CreateFile(pfm, dataFile); err != nil {
		return MethodResult{}, err
	}
	fh, err := rm.OpenFile(pfm, dataFile)
	if err != nil {
		return MethodResult{}, err
	}
	for key := 0; key < numRecords; key++ {
		if _, err := fh.InsertRec(encodeStudentRecord(key)); err != nil {
			fh.Close()
			return MethodResult{}, err
		}
	}
	if err := fh.Close(); err != nil {
		return MethodResult{}, err
	}

	pfm.ResetStats()
	start := time.Now()

	if err := am.CreateIndex(pfm, indexBase, 0, attrType, attrLength); err != nil {
		return MethodResult{}, err
	}
	tree, err := am.OpenIndex(pfm, indexBase, 0, attrType, 64)
	if err != nil {
		return MethodResult{}, err
	}

	fh2, err := rm.OpenFile(pfm, dataFile)
	if err != nil {
		return MethodResult{}, err
	}
	scan := fh2.ScanOpen()
	count := 0
	for {
		rid, data, err := scan.Next()
		if err == rm.ErrEOF {
			break
		}
		if err != nil {
			scan.Close()
			fh2.Close()
			return MethodResult{}, err
		}
		key, err := decodeStudentKey(data)
		if err != nil {
			scan.Close()
			fh2.Close()
			return MethodResult{}, err
		}
		if err := tree.InsertEntry(keyBytes(key), PackRID(rid)); err != nil {
			scan.Close()
			fh2.Close()
			return MethodResult{}, err
		}
		count++
	}
	if err := scan.Close(); err != nil {
		return MethodResult{}, err
	}
	if err := fh2.Close(); err != nil {
		return MethodResult{}, err
	}

	elapsed := time.Since(start)
	stats := pfm.GetStats()
	treeStats, err := tree.Stats()
	if err != nil {
		return MethodResult{}, err
	}
	if err := tree.Close(); err != nil {
		return MethodResult{}, err
	}
	_ = rm.DestroyFile(pfm, dataFile)
	_ = am.DestroyIndex(pfm, indexBase, 0)

	return MethodResult{Name: "Scan sorted file (bulk load)", Elapsed: elapsed, Stats: stats, Tree: treeStats, RecordsLoaded: count}, nil
}

// InsertOneByOne interleaves an RM insert and an AM insert for each of
// numRecords records, each with an independently random key — the
// "one-by-one" method. rng is caller-supplied so tests can make the
// comparison deterministic.
func InsertOneByOne(pfm *pf.Manager, dataFile, indexBase string, numRecords int, rng *rand.Rand) (MethodResult, error) {
	if err := rm.CreateFile(pfm, dataFile); err != nil {
		return MethodResult{}, err
	}
	fh, err := rm.OpenFile(pfm, dataFile)
	if err != nil {
		return MethodResult{}, err
	}
	if err := am.CreateIndex(pfm, indexBase, 0, attrType, attrLength); err != nil {
		fh.Close()
		return MethodResult{}, err
	}
	tree, err := am.OpenIndex(pfm, indexBase, 0, attrType, 64)
	if err != nil {
		fh.Close()
		return MethodResult{}, err
	}

	pfm.ResetStats()
	start := time.Now()

	for i := 0; i < numRecords; i++ {
		key := rng.Intn(numRecords * 5)
		rid, err := fh.InsertRec(encodeStudentRecord(key))
		if err != nil {
			tree.Close()
			fh.Close()
			return MethodResult{}, err
		}
		if err := tree.InsertEntry(keyBytes(key), PackRID(rid)); err != nil {
			tree.Close()
			fh.Close()
			return MethodResult{}, err
		}
	}

	elapsed := time.Since(start)
	stats := pfm.GetStats()
	treeStats, err := tree.Stats()
	if err != nil {
		tree.Close()
		fh.Close()
		return MethodResult{}, err
	}
	if err := tree.Close(); err != nil {
		return MethodResult{}, err
	}
	if err := fh.Close(); err != nil {
		return MethodResult{}, err
	}
	_ = rm.DestroyFile(pfm, dataFile)
	_ = am.DestroyIndex(pfm, indexBase, 0)

	return MethodResult{Name: "Insert one-by-one (random)", Elapsed: elapsed, Stats: stats, Tree: treeStats, RecordsLoaded: numRecords}, nil
}

// Compare runs both methods, each against its own fresh pf.Manager so
// their stats never bleed into one another, and returns both results.
func Compare(cfg *config.Config, numRecords int, seed int64) (MethodResult, MethodResult, error) {
	dataFile := cfg.DBPath + "/student_records.db"
	indexBase := cfg.DBPath + "/student_records"

	pfm1 := pf.NewManager(cfg)
	m1, err := BuildFromExisting(pfm1, dataFile, indexBase, numRecords)
	if err != nil {
		return MethodResult{}, MethodResult{}, err
	}

	pfm2 := pf.NewManager(cfg)
	m2, err := InsertOneByOne(pfm2, dataFile, indexBase, numRecords, rand.New(rand.NewSource(seed)))
	if err != nil {
		return MethodResult{}, MethodResult{}, err
	}

	return m1, m2, nil
}
