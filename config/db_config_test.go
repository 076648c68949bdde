package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jordy-godjo/pfstore/config"
)

func TestNewConfig(t *testing.T) {
	c := config.NewConfig("/tmp/DB")
	if c.DBPath != "/tmp/DB" {
		t.Fatalf("expected /tmp/DB got %s", c.DBPath)
	}
	if c.PageSize != 4096 {
		t.Fatalf("expected default pagesize 4096 got %d", c.PageSize)
	}
	if c.MaxScans != 20 {
		t.Fatalf("expected default maxscans 20 got %d", c.MaxScans)
	}
}

func TestLoadConfigSimpleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.txt")
	content := "dbpath = '../DB'\npagesize = 8192\nmaxbuffers = 16\nbufferpolicy = MRU\nmaxattrlength = 64\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if c.DBPath != "../DB" {
		t.Fatalf("expected ../DB got %s", c.DBPath)
	}
	if c.PageSize != 8192 {
		t.Fatalf("expected pagesize 8192 got %d", c.PageSize)
	}
	if c.MaxBuffers != 16 {
		t.Fatalf("expected maxbuffers 16 got %d", c.MaxBuffers)
	}
	if c.BufferPolicy != "MRU" {
		t.Fatalf("expected bufferpolicy MRU got %s", c.BufferPolicy)
	}
	if c.MaxAttrLength != 64 {
		t.Fatalf("expected maxattrlength 64 got %d", c.MaxAttrLength)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	content := `{"dbpath": "./data", "pagesize": 16384, "maxbuffers": 4, "bufferpolicy": "LRU"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if c.DBPath != "./data" {
		t.Fatalf("expected ./data got %s", c.DBPath)
	}
	if c.PageSize != 16384 {
		t.Fatalf("expected pagesize 16384 got %d", c.PageSize)
	}
	if c.MaxBuffers != 4 {
		t.Fatalf("expected maxbuffers 4 got %d", c.MaxBuffers)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfig("does-not-exist.cfg"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigEmptyFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "empty.cfg")
	if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	if _, err := config.LoadConfig(p); err == nil {
		t.Fatalf("expected error for empty config file")
	}
}

func TestLoadConfigNoDbPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nodbp.cfg")
	if err := os.WriteFile(p, []byte("other=1\n"), 0o644); err != nil {
		t.Fatalf("write file without dbpath: %v", err)
	}
	if _, err := config.LoadConfig(p); err == nil {
		t.Fatalf("expected error when dbpath is missing")
	}
}
