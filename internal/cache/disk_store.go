package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type DiskConfig struct {
	Root       string
	MaxEntries int
	MaxBytes   int64
}

type diskEntry struct {
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskIndex struct {
	Entries map[string]diskEntry `json:"entries"`
}

// DiskStore is an Origin that keeps provider results as files under Root,
// with an index for expiry and least-recently-used eviction. It lets local
// runs keep their cache across restarts without a database.
type DiskStore struct {
	mu sync.Mutex

	dataDir   string
	indexPath string

	maxEntries int
	maxBytes   int64
	now        func() time.Time

	totalBytes int64
	entries    map[string]diskEntry
}

func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultTieredConfig().MaxEntries
	}
	s := &DiskStore{
		dataDir:    filepath.Join(root, "data"),
		indexPath:  filepath.Join(root, "index.json"),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		now:        time.Now,
		entries:    map[string]diskEntry{},
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cleanupLocked(s.now()); err != nil {
		return nil, err
	}
	return s, s.persistIndexLocked()
}

// Load returns the value and its expiry, or ErrNotFound when absent or expired.
func (s *DiskStore) Load(_ context.Context, key string) ([]byte, time.Time, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	if !now.Before(ent.ExpiresAt) {
		s.removeEntryLocked(key, ent)
		_ = s.persistIndexLocked()
		return nil, time.Time{}, ErrNotFound
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, ent.File))
	if err != nil {
		if os.IsNotExist(err) {
			s.removeEntryLocked(key, ent)
			_ = s.persistIndexLocked()
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	ent.AccessedAt = now
	s.entries[key] = ent
	if err := s.persistIndexLocked(); err != nil {
		return nil, time.Time{}, err
	}
	return raw, ent.ExpiresAt, nil
}

func (s *DiskStore) Save(_ context.Context, key string, value []byte, expiresAt time.Time) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	now := s.now()
	file := hashedName(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.totalBytes -= old.Size
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, file), value, 0o644); err != nil {
		return err
	}
	s.entries[key] = diskEntry{
		File:       file,
		Size:       int64(len(value)),
		ExpiresAt:  expiresAt,
		AccessedAt: now,
	}
	s.totalBytes += int64(len(value))

	if err := s.cleanupLocked(now); err != nil {
		return err
	}
	return s.persistIndexLocked()
}

// Delete removes key and its file.
func (s *DiskStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	s.removeEntryLocked(key, ent)
	return true, s.persistIndexLocked()
}

// Clear removes every entry under prefix.
func (s *DiskStore) Clear(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, ent := range s.entries {
		if underPrefix(key, prefix) {
			s.removeEntryLocked(key, ent)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.persistIndexLocked()
}

func (s *DiskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *DiskStore) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("decode cache index: %w", err)
	}
	if idx.Entries != nil {
		s.entries = idx.Entries
	}
	for _, ent := range s.entries {
		s.totalBytes += ent.Size
	}
	return nil
}

func (s *DiskStore) cleanupLocked(now time.Time) error {
	for key, ent := range s.entries {
		if !now.Before(ent.ExpiresAt) {
			s.removeEntryLocked(key, ent)
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dataDir, ent.File)); err != nil {
			if os.IsNotExist(err) {
				s.removeEntryLocked(key, ent)
				continue
			}
			return err
		}
	}
	for s.needsEvictionLocked() {
		key, ent := s.leastRecentlyUsedLocked()
		s.removeEntryLocked(key, ent)
	}
	return nil
}

func (s *DiskStore) needsEvictionLocked() bool {
	if len(s.entries) == 0 {
		return false
	}
	return len(s.entries) > s.maxEntries || (s.maxBytes > 0 && s.totalBytes > s.maxBytes)
}

func (s *DiskStore) leastRecentlyUsedLocked() (string, diskEntry) {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		li := s.entries[keys[i]].AccessedAt
		lj := s.entries[keys[j]].AccessedAt
		if li.Equal(lj) {
			return keys[i] < keys[j]
		}
		return li.Before(lj)
	})
	return keys[0], s.entries[keys[0]]
}

func (s *DiskStore) removeEntryLocked(key string, ent diskEntry) {
	delete(s.entries, key)
	s.totalBytes -= ent.Size
	if s.totalBytes < 0 {
		s.totalBytes = 0
	}
	_ = os.Remove(filepath.Join(s.dataDir, ent.File))
}

// persistIndexLocked writes the index through a temp file so a crash never
// leaves it half written.
func (s *DiskStore) persistIndexLocked() error {
	raw, err := json.MarshalIndent(diskIndex{Entries: s.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

func hashedName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}
