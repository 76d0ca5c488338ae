// Package storage persists generated documents and returns their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/MotionAge/sn-sub000/internal/config"
)

// Uploader stores an object and returns the URL it can be fetched from.
// Writing an existing key replaces the object.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ErrInvalidKey is returned for empty keys or keys that escape the bucket root.
var ErrInvalidKey = errors.New("storage: invalid object key")

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}

func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// Object is a stored blob held by MemoryStore.
type Object struct {
	Body        []byte
	ContentType string
}

// MemoryStore keeps objects in process. Used in development and tests.
type MemoryStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore returns an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://documents"
	}
	return &MemoryStore{BaseURL: baseURL, objects: map[string]Object{}}
}

// Upload implements Uploader.
func (m *MemoryStore) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	m.mu.Lock()
	if m.objects == nil {
		m.objects = map[string]Object{}
	}
	m.objects[key] = Object{Body: buf, ContentType: contentType}
	m.mu.Unlock()
	return joinURL(m.BaseURL, key), nil
}

// Get returns the object stored under key.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[strings.TrimLeft(key, "/")]
	return obj, ok
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ServeHTTP serves stored objects so memory-backed URLs resolve in development.
// Mount it with http.StripPrefix.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	obj, ok := m.Get(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(obj.Body)
}

// FromConfig builds the Uploader selected by STORAGE_DRIVER.
func FromConfig(ctx context.Context, cfg config.StorageConfig, publicAPIBase string) (Uploader, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "", "memory":
		base := cfg.PublicBaseURL
		if base == "" {
			base = strings.TrimRight(publicAPIBase, "/") + "/files"
		}
		return NewMemoryStore(base), nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}
