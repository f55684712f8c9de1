// Package storage keeps content-addressed snapshot backups on disk.
//
// A backup is the JSON encoding of a snapshot stored under its SHA-256 hash at
// baseDir/{hash[0:2]}/{hash[2:4]}/{hash}. Identical snapshots are stored once.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/kimhsiao/resaletally/internal/models"
)

var hashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// BackupStore stores snapshot backups by their content hash.
type BackupStore struct {
	baseDir string
}

// BackupInfo describes one stored backup.
type BackupInfo struct {
	Hash    string
	Size    int64
	ModTime int64 // Unix seconds
}

// NewBackupStore creates a new BackupStore rooted at baseDir.
func NewBackupStore(baseDir string) *BackupStore {
	return &BackupStore{
		baseDir: baseDir,
	}
}

// CalculateHash returns the hex SHA-256 of data.
func CalculateHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ValidHash reports whether hash is a lowercase hex SHA-256.
func ValidHash(hash string) bool {
	return hashRegex.MatchString(hash)
}

// Save encodes snapshot and stores it. It returns the content hash.
func (s *BackupStore) Save(snapshot *models.Snapshot) (string, error) {
	if snapshot == nil {
		return "", fmt.Errorf("nil snapshot")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.Store(data)
}

// Load retrieves and decodes the backup stored under hash.
func (s *BackupStore) Load(hash string) (*models.Snapshot, error) {
	data, err := s.Retrieve(hash)
	if err != nil {
		return nil, err
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode backup %s: %w", hash, err)
	}
	return &snapshot, nil
}

// Store writes data and returns its content hash. Existing content is not
// rewritten.
func (s *BackupStore) Store(data []byte) (string, error) {
	hash := CalculateHash(data)

	dir := filepath.Join(s.baseDir, hash[0:2], hash[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	filePath := filepath.Join(dir, hash)
	if _, err := os.Stat(filePath); err == nil {
		// Refresh the mtime so pruning treats it as recent.
		now := time.Now()
		_ = os.Chtimes(filePath, now, now)
		return hash, nil
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return hash, nil
}

// Retrieve returns the content stored under hash after verifying it.
// The error wraps os.ErrNotExist when the hash is not stored.
func (s *BackupStore) Retrieve(hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, fmt.Errorf("invalid backup hash %q", hash)
	}

	data, err := os.ReadFile(s.getPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if calculated := CalculateHash(data); calculated != hash {
		return nil, fmt.Errorf("hash mismatch: expected %s, got %s", hash, calculated)
	}

	return data, nil
}

// Delete removes the backup stored under hash. Missing backups are ignored.
func (s *BackupStore) Delete(hash string) error {
	if !ValidHash(hash) {
		return fmt.Errorf("invalid backup hash %q", hash)
	}

	filePath := s.getPath(hash)
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Drop the fan-out directories once empty.
	dir := filepath.Dir(filePath)
	os.Remove(dir)
	os.Remove(filepath.Dir(dir))

	return nil
}

// Exists checks if a backup exists for hash.
func (s *BackupStore) Exists(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.getPath(hash))
	return err == nil
}

func (s *BackupStore) getPath(hash string) string {
	return filepath.Join(s.baseDir, hash[0:2], hash[2:4], hash)
}

// List returns every stored backup, newest first.
func (s *BackupStore) List() ([]BackupInfo, error) {
	var backups []BackupInfo

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.baseDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !ValidHash(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		backups = append(backups, BackupInfo{
			Hash:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk backups: %w", err)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].ModTime != backups[j].ModTime {
			return backups[i].ModTime > backups[j].ModTime
		}
		return backups[i].Hash < backups[j].Hash
	})
	return backups, nil
}

// Prune keeps the newest keep backups plus any hash in pinned and deletes the
// rest. It returns the number of backups removed.
func (s *BackupStore) Prune(keep int, pinned ...string) (int, error) {
	backups, err := s.List()
	if err != nil {
		return 0, err
	}

	pin := make(map[string]bool, len(pinned))
	for _, h := range pinned {
		pin[h] = true
	}

	removed := 0
	for i, b := range backups {
		if i < keep || pin[b.Hash] {
			continue
		}
		if err := s.Delete(b.Hash); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
