package driver

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"quill/internal/backend"
)

// cacheSchemaVersion invalidates every cached unit when the object or
// manifest encoding changes. Bump on any change to backend.Object, the
// manifest wire format, or the payload struct below.
const cacheSchemaVersion uint16 = 2

// Digest keys one cached unit: a hash over the artifact content, the
// target triple, and the schema version.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ArtifactKey computes the cache key for one .qast artifact compiled for
// one target.
func ArtifactKey(content []byte, triple string) Digest {
	h := sha256.New()
	var schema [2]byte
	binary.LittleEndian.PutUint16(schema[:], cacheSchemaVersion)
	h.Write(schema[:])
	h.Write([]byte(triple))
	h.Write([]byte{0})
	h.Write(content)
	var d Digest
	h.Sum(d[:0])
	return d
}

// cachePayload is the stored value: the emitted object plus the encoded
// layout manifest. Target is kept for sanity checking on read.
type cachePayload struct {
	Schema   uint16
	Target   string
	Object   *backend.Object
	Manifest []byte
}

// DiskCache stores compiled units under a cache directory, one msgpack
// file per digest. Writes go through a temp file and a rename, so readers
// never observe a partial entry. Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenDiskCache opens (creating if needed) the cache under
// $XDG_CACHE_HOME/<app> or ~/.cache/<app>.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("driver: cache dir: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt opens the cache rooted at an explicit directory.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("driver: cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) path(key Digest) string {
	return filepath.Join(c.dir, key.String()+".mp")
}

// Get loads the entry for key into out. A missing or unreadable entry is
// a miss, not an error; errors mean the entry existed but would not
// decode.
func (c *DiskCache) Get(key Digest, out *cachePayload) (bool, error) {
	c.mu.RLock()
	data, err := os.ReadFile(c.path(key))
	c.mu.RUnlock()
	if err != nil {
		// Missing or unreadable both mean a rebuild.
		return false, nil
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("driver: corrupt cache entry %s: %w", key, err)
	}
	if out.Schema != cacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// Put stores the entry for key atomically.
func (c *DiskCache) Put(key Digest, payload *cachePayload) error {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("driver: encode cache entry: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp, err := os.CreateTemp(c.dir, "put-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, c.path(key))
}
