// Package store implements the KV object store: a content-addressed on-disk
// namespace sharded by (bus, namespace, hex-encoded key) with ordered prefix
// listing. The filesystem is the index; no metadata is kept beyond size.
package store

import (
	"io"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/airmettle/go-nvme-kv/internal/constants"
	"github.com/airmettle/go-nvme-kv/internal/kverr"
)

// Store is an object store rooted at a base directory.
type Store struct {
	baseDir string
}

// New creates a store rooted at baseDir. The directory itself is created
// lazily on the first write-side call.
func New(baseDir string) *Store {
	if baseDir == "" {
		baseDir = "."
	}
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Path resolves an object's filesystem path without creating directories;
// read-side collaborators such as the query engine use this.
func (s *Store) Path(bus, ns uint32, key []byte) (string, error) {
	path, err := s.path(bus, ns, key, false)
	if err != nil {
		return "", kverr.Wrap("path", kverr.ErrFilePath, path, err)
	}
	return path, nil
}

// exists probes a path without creating anything.
func exists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}

// Store writes an object and returns the number of bytes written.
// append=false truncates any existing object; append=true creates or
// extends. must_exist and must_not_exist are mutually exclusive
// preconditions checked against the current directory entry.
func (s *Store) Store(bus, ns uint32, key, value []byte, append, mustExist, mustNotExist bool) (int, error) {
	if mustExist && mustNotExist {
		return 0, kverr.New("store", kverr.ErrInvalidParameter)
	}
	path, err := s.path(bus, ns, key, true)
	if err != nil {
		return 0, kverr.Wrap("store", kverr.ErrFilePath, path, err)
	}

	present := exists(path)
	if mustExist && !present {
		return 0, kverr.NewPath("store", kverr.ErrFileNotFound, path)
	}
	if mustNotExist && present {
		return 0, kverr.NewPath("store", kverr.ErrFileExists, path)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o666)
	if err != nil {
		return 0, kverr.FromOpenError("store", path, err)
	}
	defer f.Close()

	n, err := f.Write(value)
	if err != nil || n != len(value) {
		return n, kverr.Wrap("store", kverr.ErrFileWrite, path, err)
	}
	return n, nil
}

// Read fills buf from the object starting at offset and reports the bytes
// read plus the total object size. Reading at or past the end returns zero
// bytes and the true total; truncation to the buffer size is not an error.
func (s *Store) Read(bus, ns uint32, key []byte, offset uint64, buf []byte) (n int, total uint64, err error) {
	path, perr := s.path(bus, ns, key, false)
	if perr != nil {
		return 0, 0, kverr.Wrap("read", kverr.ErrFilePath, path, perr)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, kverr.FromOpenError("read", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, 0, kverr.Wrap("read", kverr.ErrFileRead, path, err)
	}
	total = uint64(fi.Size())

	if offset >= total {
		return 0, total, nil
	}
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, total, kverr.Wrap("read", kverr.ErrFileOffset, path, err)
	}
	n, err = io.ReadFull(f, buf[:min(uint64(len(buf)), total-offset)])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, total, kverr.Wrap("read", kverr.ErrFileRead, path, err)
	}
	return n, total, nil
}

// Delete removes an object. A missing object reports ErrFileNotFound; any
// other removal failure reports ErrRemove.
func (s *Store) Delete(bus, ns uint32, key []byte) error {
	path, err := s.path(bus, ns, key, true)
	if err != nil {
		return kverr.Wrap("delete", kverr.ErrFilePath, path, err)
	}
	if err := os.Remove(path); err != nil {
		return kverr.FromRemoveError("delete", path, err)
	}
	return nil
}

// Exist reports 1 if the object is present, 0 if not.
func (s *Store) Exist(bus, ns uint32, key []byte) (int, error) {
	path, err := s.path(bus, ns, key, false)
	if err != nil {
		return 0, kverr.Wrap("exist", kverr.ErrFilePath, path, err)
	}
	if exists(path) {
		return 1, nil
	}
	return 0, nil
}

// List enumerates keys in the namespace whose hex form sorts at or after
// hex(prefix), in ascending hex order, skipping offset entries and
// returning at most maxReturn keys. maxReturn==0 means unlimited. A
// directory entry inside the returned window implying a key longer than 16
// bytes fails the listing with ErrKeyTooLong; entries outside the window
// are not checked.
func (s *Store) List(bus, ns uint32, prefix []byte, offset, maxReturn uint64) ([][]byte, error) {
	if maxReturn == 0 {
		maxReturn = 0xFFFFFFFF
	}
	dir, err := s.path(bus, ns, nil, false)
	if err != nil {
		return nil, kverr.Wrap("list", kverr.ErrFilePath, dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		// A namespace nothing was written to is empty, not an error; the
		// directory only appears on write paths.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kverr.Wrap("list", kverr.ErrFilePath, dir, err)
	}

	prefixHex := HexKey(prefix)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if len(prefixHex) > 0 && name < prefixHex {
			continue
		}
		names = append(names, name)
	}
	// os.ReadDir sorts by filename already; keep the explicit sort as the
	// ordering contract rather than a directory-reading detail.
	sort.Strings(names)

	if uint64(len(names)) <= offset {
		return nil, nil
	}
	count := min(uint64(len(names))-offset, maxReturn)

	keys := make([][]byte, 0, count)
	for _, name := range names[offset : offset+count] {
		if len(name)/2 > constants.MaxKeyLength {
			return nil, kverr.NewPath("list", kverr.ErrKeyTooLong, name)
		}
		keys = append(keys, DecodeHexKey(name))
	}
	return keys, nil
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
