package config

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config holds the tunables for the paged-file, record and index layers.
// It plays the role db_config.go's DBConfig used to: a single struct built
// once at startup and threaded explicitly into every manager instead of
// being read from package-level globals.
type Config struct {
	DBPath        string `json:"dbpath"`
	PageSize      int    `json:"pagesize"`
	MaxBuffers    int    `json:"maxbuffers"`
	BufferPolicy  string `json:"bufferpolicy"`
	FileTableSize int    `json:"filetablesize"`
	HashBuckets   int    `json:"hashbuckets"`
	MaxAttrLength int    `json:"maxattrlength"`
	MaxScans      int    `json:"maxscans"`
}

// NewConfig builds a Config rooted at dbpath with the defaults spec.md §6
// suggests (4096-byte pages, 20 buffers, LRU, 256-byte max attribute, 20
// concurrent scans).
func NewConfig(dbpath string) *Config {
	return &Config{
		DBPath:        dbpath,
		PageSize:      4096,
		MaxBuffers:    20,
		BufferPolicy:  "LRU",
		FileTableSize: 20,
		HashBuckets:   211,
		MaxAttrLength: 256,
		MaxScans:      20,
	}
}

// NewConfigWithParams builds a Config overriding page size and buffer count,
// keeping the rest at their defaults.
func NewConfigWithParams(dbpath string, pageSize int, maxBuffers int) *Config {
	c := NewConfig(dbpath)
	c.PageSize = pageSize
	c.MaxBuffers = maxBuffers
	return c
}

// LoadConfig reads a Config from disk, trying JSON first and falling back to
// a permissive key=value / key: value line format.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty config file")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err == nil && c.DBPath != "" {
		fillDefaults(&c)
		return &c, nil
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sep := "="
		if !strings.Contains(line, "=") && strings.Contains(line, ":") {
			sep = ":"
		}
		parts := strings.SplitN(line, sep, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		applyField(&c, key, val)
	}
	if c.DBPath == "" {
		return nil, errors.New("dbpath not found in config")
	}
	fillDefaults(&c)
	return &c, nil
}

func applyField(c *Config, key, val string) {
	switch key {
	case "dbpath":
		c.DBPath = val
	case "pagesize":
		if v, err := strconv.Atoi(val); err == nil {
			c.PageSize = v
		}
	case "maxbuffers", "bm_buffercount":
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxBuffers = v
		}
	case "bufferpolicy", "bm_policy":
		c.BufferPolicy = val
	case "filetablesize":
		if v, err := strconv.Atoi(val); err == nil {
			c.FileTableSize = v
		}
	case "hashbuckets":
		if v, err := strconv.Atoi(val); err == nil {
			c.HashBuckets = v
		}
	case "maxattrlength":
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxAttrLength = v
		}
	case "maxscans":
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxScans = v
		}
	}
}

func fillDefaults(c *Config) {
	if c.PageSize == 0 {
		c.PageSize = 4096
	}
	if c.MaxBuffers == 0 {
		c.MaxBuffers = 20
	}
	if c.BufferPolicy == "" {
		c.BufferPolicy = "LRU"
	}
	if c.FileTableSize == 0 {
		c.FileTableSize = 20
	}
	if c.HashBuckets == 0 {
		c.HashBuckets = 211
	}
	if c.MaxAttrLength == 0 {
		c.MaxAttrLength = 256
	}
	if c.MaxScans == 0 {
		c.MaxScans = 20
	}
}
