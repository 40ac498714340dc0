package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
)

// Exported constants.
const (
	// CacheDirName is the name of the local cache directory.
	CacheDirName = ".mockcpp"
	// CacheFileName is the cache file inside CacheDirName.
	CacheFileName = "cache.json"
	// DirPerm is the default directory permission.
	DirPerm = 0o755
	// FilePerm is the default file permission.
	FilePerm = 0o600
)

// CacheData represents the structure of the persistent disk cache.
type CacheData struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// CacheEntry records the inputs that produced one generated file.
type CacheEntry struct {
	Signature string `json:"signature"`
	Source    string `json:"source"`
}

// CacheFileSystem abstracts file operations for the cache system.
type CacheFileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Getwd() (string, error)
}

// CalculateSignature hashes the inputs of one generated file: tool version, effective configuration,
// source path and content, and output path.
func CalculateSignature(cfg Config, source string, content []byte, outputPath string) string {
	hash := sha256.New()

	settings, _ := json.Marshal(cfg) //nolint:errchkjson // plain struct of strings and ints

	for _, part := range [][]byte{[]byte(Version), settings, []byte(source), content, []byte(outputPath)} {
		_, _ = hash.Write(part)
		_, _ = hash.Write([]byte{0})
	}

	return hex.EncodeToString(hash.Sum(nil))
}

// FindProjectRoot locates the nearest directory containing a configuration file or a cache
// directory, falling back to the working directory.
func FindProjectRoot(cfs CacheFileSystem) (string, error) {
	wd, err := cfs.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}

	curr := wd

	for {
		for _, marker := range []string{DefaultConfigName, CacheDirName} {
			_, err = cfs.Stat(filepath.Join(curr, marker))
			if err == nil {
				return curr, nil
			}
		}

		parent := filepath.Dir(curr)
		if parent == curr {
			return wd, nil
		}

		curr = parent
	}
}

// LoadDiskCache reads the cache from the specified path. A missing or corrupt cache is empty.
func LoadDiskCache(path string, cfs CacheFileSystem) CacheData {
	data := CacheData{Entries: make(map[string]CacheEntry)}

	raw, err := cfs.ReadFile(path)
	if err != nil {
		return data
	}

	_ = json.Unmarshal(raw, &data)

	if data.Entries == nil {
		data.Entries = make(map[string]CacheEntry)
	}

	return data
}

// SaveDiskCache writes the cache to the specified path.
func SaveDiskCache(path string, data CacheData, cfs CacheFileSystem) error {
	err := cfs.MkdirAll(filepath.Dir(path), DirPerm)
	if err != nil {
		return errors.Wrapf(err, "creating cache directory for %s", path)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding cache")
	}

	err = cfs.WriteFile(path, append(raw, '\n'), FilePerm)
	if err != nil {
		return errors.Wrapf(err, "writing cache %s", path)
	}

	return nil
}

// generationCache is the disk cache shared by parallel workers during one run.
type generationCache struct {
	mu      sync.Mutex
	path    string
	data    CacheData
	dirty   bool
	enabled bool
}

func openCache(enabled bool, cfs CacheFileSystem) (*generationCache, error) {
	cache := &generationCache{enabled: enabled, data: CacheData{Entries: make(map[string]CacheEntry)}}
	if !enabled {
		return cache, nil
	}

	root, err := FindProjectRoot(cfs)
	if err != nil {
		return nil, err
	}

	cache.path = filepath.Join(root, CacheDirName, CacheFileName)
	cache.data = LoadDiskCache(cache.path, cfs)

	return cache, nil
}

// fresh reports whether outputPath was produced from the same inputs and still exists.
func (c *generationCache) fresh(outputPath, signature string, cfs CacheFileSystem) bool {
	if !c.enabled {
		return false
	}

	c.mu.Lock()
	entry, ok := c.data.Entries[outputPath]
	c.mu.Unlock()

	if !ok || entry.Signature != signature {
		return false
	}

	_, err := cfs.Stat(outputPath)

	return err == nil
}

func (c *generationCache) record(outputPath, signature, source string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Entries[outputPath] = CacheEntry{Signature: signature, Source: source}
	c.dirty = true
}

func (c *generationCache) save(cfs CacheFileSystem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || !c.dirty {
		return nil
	}

	c.dirty = false

	return SaveDiskCache(c.path, c.data, cfs)
}
