package hexlicense

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CacheFileName is the name of the single cache file inside the cache directory.
const CacheFileName = "license.cache"

const (
	cacheDirPerm  fs.FileMode = 0o700
	cacheFilePerm fs.FileMode = 0o600
)

// OfflineCache persists the last known-good LicenseRecord, encrypted at rest.
// It holds exactly one record; every Save overwrites the previous one.
// Concurrent writers from several processes are not coordinated.
type OfflineCache struct {
	dir  string
	caps Capabilities
}

// NewOfflineCache returns a cache rooted at dir. The directory is created on
// the first Save.
func NewOfflineCache(dir string, caps Capabilities) *OfflineCache {
	return &OfflineCache{dir: dir, caps: caps}
}

// Path returns the cache file location.
func (c *OfflineCache) Path() string {
	return filepath.Join(c.dir, CacheFileName)
}

// Save encrypts record and writes "<ivHex>:<cipherHex>" with owner-only
// permissions. Invalid records are refused and the file is left untouched.
func (c *OfflineCache) Save(record *LicenseRecord, key Key) error {
	if !c.caps.HasCrypto {
		return ErrCryptoUnavailable
	}
	if record == nil || !record.Valid {
		return ErrRecordNotValid
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	iv, ciphertext, err := Encrypt(payload, key)
	if err != nil {
		return fmt.Errorf("encrypt record: %w", err)
	}
	blob := hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext)

	if err := os.MkdirAll(c.dir, cacheDirPerm); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	// MkdirAll leaves an existing directory's mode alone.
	if err := os.Chmod(c.dir, cacheDirPerm); err != nil {
		return fmt.Errorf("restrict cache dir: %w", err)
	}
	return writeFileAtomic(c.Path(), []byte(blob), cacheFilePerm)
}

// Load reads and decrypts the cached record. A missing file returns
// ErrCacheMissing; anything unreadable returns an error wrapping ErrCacheCorrupt.
func (c *OfflineCache) Load(key Key) (*LicenseRecord, error) {
	if !c.caps.HasCrypto {
		return nil, ErrCryptoUnavailable
	}

	raw, err := os.ReadFile(c.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrCacheCorrupt, err)
	}

	ivHex, cipherHex, ok := strings.Cut(strings.TrimSpace(string(raw)), ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing separator", ErrCacheCorrupt)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrCacheCorrupt, err)
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrCacheCorrupt, err)
	}

	plain, err := Decrypt(iv, ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
	}

	var record LicenseRecord
	if err := json.Unmarshal(plain, &record); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCacheCorrupt, err)
	}
	if record.ValidatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing validatedAt", ErrCacheCorrupt)
	}
	return &record, nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *OfflineCache) Clear() error {
	if err := os.Remove(c.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers never observe a partial blob.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
