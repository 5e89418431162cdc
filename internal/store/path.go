package store

import (
	"os"
	"path/filepath"
	"strconv"
)

const hexDigits = "0123456789ABCDEF"

// HexKey renders a key as fixed uppercase hex, two characters per byte.
// The hex form is the on-disk name and the canonical listing order.
func HexKey(key []byte) string {
	buf := make([]byte, 2*len(key))
	for i, c := range key {
		buf[2*i] = hexDigits[c>>4]
		buf[2*i+1] = hexDigits[c&0xf]
	}
	return string(buf)
}

// DecodeHexKey reverses HexKey for a directory entry name. Odd trailing
// characters are ignored, matching the name-length/2 rule for key sizing.
func DecodeHexKey(name string) []byte {
	n := len(name) / 2
	key := make([]byte, n)
	for i := 0; i < n; i++ {
		key[i] = hexNibble(name[2*i])<<4 | hexNibble(name[2*i+1])
	}
	return key
}

func hexNibble(c byte) byte {
	if c <= '9' {
		return c - '0'
	}
	return c - 'A' + 10
}

// path maps (bus, ns, key) to <base>/<bus>/<ns>/<HEXKEY>. A zero-length key
// yields the namespace directory itself. When mkdirs is set, each directory
// level is created; read-side callers never create directories.
func (s *Store) path(bus, ns uint32, key []byte, mkdirs bool) (string, error) {
	dir := filepath.Join(s.baseDir,
		strconv.FormatUint(uint64(bus), 10),
		strconv.FormatUint(uint64(ns), 10))
	if mkdirs {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return "", err
		}
	}
	if len(key) == 0 {
		return dir, nil
	}
	return filepath.Join(dir, HexKey(key)), nil
}
