// Package idempotency remembers the response to a mint submission so a
// client retrying with the same X-Idempotency-Key never signs twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record holds a stored response. A record with a zero StatusCode is a
// reservation for a request that is still being processed.
type Record struct {
	StatusCode int `json:"statusCode"`
	// RequestHash fingerprints the request body the response belongs to.
	RequestHash string    `json:"requestHash"`
	Response    []byte    `json:"response"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Pending reports whether the record is a reservation without a response yet.
func (r Record) Pending() bool {
	return r.StatusCode == 0
}

// Matches reports whether body is the request this record was stored for.
func (r Record) Matches(body []byte) bool {
	return r.RequestHash == "" || r.RequestHash == Fingerprint(body)
}

// Fingerprint is the RequestHash of body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Store abstracts idempotency persistence. Get returns nil, nil for unknown
// or expired keys.
//
// Reserve claims key for a request that is about to be processed. It
// stores a pending record unless an unexpired record already exists and
// reports whether the claim succeeded; only one caller wins per key. Save
// replaces the reservation with the response, Release drops a pending
// reservation so the key can be retried.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) (bool, error)
	Save(ctx context.Context, key string, record Record) error
	Release(ctx context.Context, key string) error
}

func reservation(requestHash string, now, expiresAt time.Time) Record {
	return Record{RequestHash: requestHash, CreatedAt: now, ExpiresAt: expiresAt}
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		now:  time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[key]
	if !ok || rec.Expired(m.now()) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if rec, ok := m.data[key]; ok && !rec.Expired(now) {
		return false, nil
	}
	m.data[key] = reservation(requestHash, now, expiresAt)
	return true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = record
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.data[key]; ok && rec.Pending() {
		delete(m.data, key)
	}
	return nil
}

// FileStore persists records to a JSON file. Suitable for a single local instance.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Record
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]Record),
		now:  time.Now,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, &f.data); err != nil {
		return err
	}
	now := f.now()
	for k, rec := range f.data {
		if rec.Expired(now) {
			delete(f.data, k)
		}
	}
	return nil
}

// persist replaces the file atomically.
func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(_ context.Context, key string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	if record.Expired(f.now()) {
		delete(f.data, key)
		_ = f.persist()
		return nil, nil
	}
	return &record, nil
}

func (f *FileStore) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if rec, ok := f.data[key]; ok && !rec.Expired(now) {
		return false, nil
	}
	f.data[key] = reservation(requestHash, now, expiresAt)
	if err := f.persist(); err != nil {
		delete(f.data, key)
		return false, err
	}
	return true, nil
}

func (f *FileStore) Save(_ context.Context, key string, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = record
	return f.persist()
}

func (f *FileStore) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[key]
	if !ok || !rec.Pending() {
		return nil
	}
	delete(f.data, key)
	return f.persist()
}
