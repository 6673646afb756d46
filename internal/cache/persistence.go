package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/internal/vault"
)

const fileExt = ".json"

// Persistence handles the disk I/O for the Cache: one file per access code.
type Persistence struct {
	DataDir string
	key     []byte
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler rooted at dir.
// A non-empty key seals every file with AES-GCM.
func NewPersistence(dir string, key []byte) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if len(key) != 0 && len(key) != vault.KeySize {
		return nil, fmt.Errorf("cache key must be %d bytes", vault.KeySize)
	}
	return &Persistence{DataDir: dir, key: key}, nil
}

func (p *Persistence) path(code string) (string, error) {
	if code == "" || strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return "", fmt.Errorf("invalid cache key %q", code)
	}
	return filepath.Join(p.DataDir, code+fileExt), nil
}

// Save writes one entry atomically: temp file first, then rename over the old file.
// A crash leaves either the previous file or the new one, never a torn write.
func (p *Persistence) Save(code string, e Entry) error {
	filePath, err := p.path(code)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if len(p.key) != 0 {
		sealed, err := vault.Seal(data, p.key)
		if err != nil {
			return fmt.Errorf("seal cache entry: %w", err)
		}
		data = []byte(sealed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Remove deletes the file for code. A missing file is not an error.
func (p *Persistence) Remove(code string) error {
	filePath, err := p.path(code)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}

// LoadAll returns every entry found in the data directory.
// Unreadable or corrupt files are skipped with a warning.
func (p *Persistence) LoadAll() (map[string]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	all := make(map[string]Entry)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != fileExt {
			continue
		}
		code := strings.TrimSuffix(file.Name(), fileExt)

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			logging.Warn("skipping unreadable cache file", logging.Fields{"file": file.Name(), "error": err.Error()})
			continue
		}
		if len(p.key) != 0 {
			content, err = vault.Open(string(content), p.key)
			if err != nil {
				logging.Warn("skipping sealed cache file", logging.Fields{"file": file.Name(), "error": err.Error()})
				continue
			}
		}

		var e Entry
		if err := json.Unmarshal(content, &e); err != nil {
			logging.Warn("skipping corrupt cache file", logging.Fields{"file": file.Name(), "error": err.Error()})
			continue
		}
		all[code] = e
	}
	return all, nil
}
