// Package cache is a disk-backed JSON cache for Strava responses.
// Activity streams are large and rate-limited upstream, so detail and
// stream payloads persist across app restarts with an LRU size cap and
// a TTL.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Kinds of cached payloads. Each kind gets its own subdirectory.
const (
	KindDetail  = "detail"
	KindStreams = "streams"
)

// Store provides disk-based caching of per-activity JSON payloads.
// Layout: baseDir/{kind}/{activityID}.json, with a metadata index at
// baseDir/cache_index.json.
type Store struct {
	baseDir   string
	maxSize   int64 // Maximum cache size in bytes
	currSize  int64 // Current cache size (atomic)
	ttl       time.Duration
	mu        sync.RWMutex
	metadata  map[string]*EntryMetadata
	evictChan chan struct{}
}

// EntryMetadata stores information about one cached payload.
type EntryMetadata struct {
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	ActivityID int64     `json:"activityId"`
	Size       int64     `json:"size"`
	AccessTime time.Time `json:"accessTime"`
	CreateTime time.Time `json:"createTime"`
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string, maxSizeMB int, ttlDays int) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	store := &Store{
		baseDir:   baseDir,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		metadata:  make(map[string]*EntryMetadata),
		evictChan: make(chan struct{}, 1),
	}

	if err := store.loadMetadata(); err != nil {
		// Index missing or corrupt; rebuild it from the files on disk.
		if err := store.rebuildMetadata(); err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	go store.maintenanceWorker()

	return store, nil
}

// Get reads a cached payload into out. A miss, an expired entry or a
// payload that no longer unmarshals all report a clean miss.
func (s *Store) Get(kind string, activityID int64, out interface{}) bool {
	key := buildKey(kind, activityID)

	s.mu.RLock()
	meta, exists := s.metadata[key]
	s.mu.RUnlock()

	if !exists {
		return false
	}

	if s.ttl > 0 && time.Since(meta.CreateTime) > s.ttl {
		s.evictEntry(key, meta)
		return false
	}

	data, err := os.ReadFile(s.buildFilePath(meta))
	if err != nil {
		// File missing under the index; drop the entry.
		s.evictEntry(key, meta)
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		s.evictEntry(key, meta)
		return false
	}

	s.mu.Lock()
	meta.AccessTime = time.Now()
	s.mu.Unlock()

	go s.saveMetadata()

	return true
}

// Set stores a payload for an activity.
func (s *Store) Set(kind string, activityID int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	key := buildKey(kind, activityID)
	now := time.Now()
	meta := &EntryMetadata{
		Key:        key,
		Kind:       kind,
		ActivityID: activityID,
		Size:       int64(len(data)),
		AccessTime: now,
		CreateTime: now,
	}

	filePath := s.buildFilePath(meta)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	s.mu.Lock()
	if oldMeta, exists := s.metadata[key]; exists {
		atomic.AddInt64(&s.currSize, -oldMeta.Size)
	}
	s.metadata[key] = meta
	s.mu.Unlock()

	atomic.AddInt64(&s.currSize, meta.Size)

	if atomic.LoadInt64(&s.currSize) > s.maxSize {
		select {
		case s.evictChan <- struct{}{}:
		default:
		}
	}

	go s.saveMetadata()

	return nil
}

func buildKey(kind string, activityID int64) string {
	return fmt.Sprintf("%s:%d", kind, activityID)
}

func (s *Store) buildFilePath(meta *EntryMetadata) string {
	return filepath.Join(s.baseDir, meta.Kind, fmt.Sprintf("%d.json", meta.ActivityID))
}

func (s *Store) evictEntry(key string, meta *EntryMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.Remove(s.buildFilePath(meta))
	delete(s.metadata, key)
	atomic.AddInt64(&s.currSize, -meta.Size)
}

// maintenanceWorker runs periodic cache maintenance.
func (s *Store) maintenanceWorker() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.evictChan:
			s.evictOldEntries()
		case <-ticker.C:
			s.evictExpiredEntries()
		}
	}
}

// evictOldEntries removes least recently used payloads when the cache
// exceeds its size cap, down to 80% of the cap to avoid thrashing.
func (s *Store) evictOldEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	currSize := atomic.LoadInt64(&s.currSize)
	if currSize <= s.maxSize {
		return
	}
	targetSize := s.maxSize * 8 / 10

	entries := make([]*EntryMetadata, 0, len(s.metadata))
	for _, meta := range s.metadata {
		entries = append(entries, meta)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccessTime.Before(entries[j].AccessTime)
	})

	for _, meta := range entries {
		if currSize <= targetSize {
			break
		}
		os.Remove(s.buildFilePath(meta))
		delete(s.metadata, meta.Key)
		atomic.AddInt64(&s.currSize, -meta.Size)
		currSize -= meta.Size
	}

	s.saveMetadata()
}

// evictExpiredEntries removes payloads older than the TTL.
func (s *Store) evictExpiredEntries() {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, meta := range s.metadata {
		if now.Sub(meta.CreateTime) > s.ttl {
			os.Remove(s.buildFilePath(meta))
			delete(s.metadata, key)
			atomic.AddInt64(&s.currSize, -meta.Size)
			evicted++
		}
	}

	if evicted > 0 {
		s.saveMetadata()
	}
}

func (s *Store) loadMetadata() error {
	metaPath := filepath.Join(s.baseDir, "cache_index.json")

	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("metadata file not found")
		}
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata map[string]*EntryMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	s.metadata = metadata

	var totalSize int64
	for _, meta := range metadata {
		totalSize += meta.Size
	}
	atomic.StoreInt64(&s.currSize, totalSize)

	return nil
}

// saveMetadata writes the index via a temp file and rename so a crash
// never leaves a half-written index.
func (s *Store) saveMetadata() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metaPath := filepath.Join(s.baseDir, "cache_index.json")

	data, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tempPath := metaPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tempPath, metaPath); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}

	return nil
}

// rebuildMetadata rescans the cache directory after a lost index.
func (s *Store) rebuildMetadata() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata = make(map[string]*EntryMetadata)
	var totalSize int64

	for _, kind := range []string{KindDetail, KindStreams} {
		dir := filepath.Join(s.baseDir, kind)
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			var activityID int64
			if _, err := fmt.Sscanf(f.Name(), "%d.json", &activityID); err != nil {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}

			key := buildKey(kind, activityID)
			s.metadata[key] = &EntryMetadata{
				Key:        key,
				Kind:       kind,
				ActivityID: activityID,
				Size:       info.Size(),
				AccessTime: info.ModTime(),
				CreateTime: info.ModTime(),
			}
			totalSize += info.Size()
		}
	}

	atomic.StoreInt64(&s.currSize, totalSize)

	return s.saveMetadata()
}

// Stats returns cache statistics.
func (s *Store) Stats() (entries int, sizeBytes int64, maxBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata), atomic.LoadInt64(&s.currSize), s.maxSize
}

// Clear removes all cached payloads.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, meta := range s.metadata {
		os.Remove(s.buildFilePath(meta))
	}
	s.metadata = make(map[string]*EntryMetadata)
	atomic.StoreInt64(&s.currSize, 0)

	return s.saveMetadata()
}

// Path returns the base directory of the cache.
func (s *Store) Path() string {
	return s.baseDir
}
