// Package offline implements the app's offline cache manager: a versioned
// static cache filled at install, a bounded runtime cache filled while
// serving, and the install/activate/fetch lifecycle that ties them together.
package offline

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotCached is returned by Cache.Match when no entry exists for a request.
var ErrNotCached = errors.New("not cached")

// Request identifies a cacheable request.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Get builds a GET request for url.
func Get(url string) Request {
	return Request{Method: http.MethodGet, URL: url}
}

// Key is the cache identity of the request: method and URL.
func (r Request) Key() string {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + r.URL
}

// ParseKey reverses Request.Key.
func ParseKey(key string) Request {
	method, url, ok := strings.Cut(key, " ")
	if !ok {
		return Get(key)
	}
	return Request{Method: method, URL: url}
}

// ResponseType mirrors the browser's response tainting.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"
	TypeCORS   ResponseType = "cors"
	TypeOpaque ResponseType = "opaque"
)

// Source tells where a response served by the manager came from.
type Source string

const (
	SourceCache   Source = "HIT"
	SourceNetwork Source = "MISS"
	SourceStale   Source = "STALE"
	SourceBypass  Source = "BYPASS"
)

// Response is a stored or fetched response.
type Response struct {
	Status   int          `json:"status"`
	Header   http.Header  `json:"header,omitempty"`
	Body     []byte       `json:"body"`
	Type     ResponseType `json:"type"`
	StoredAt time.Time    `json:"stored_at"`

	// Source is set on responses returned by Manager.Fetch and never stored.
	Source Source `json:"-"`
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// OK reports a 200 response.
func (r *Response) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

// Cache is one named cache.
type Cache interface {
	Name() string
	Match(ctx context.Context, req Request) (*Response, error)
	Put(ctx context.Context, req Request, resp *Response) error
	Delete(ctx context.Context, req Request) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds the named caches.
type Storage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open returns the named cache, creating it if needed.
func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{name: name, entries: make(map[string]*Response)}
		s.caches[name] = c
	}
	return c, nil
}

// Names lists the caches in lexical order.
func (s *MemoryStorage) Names(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete drops the named cache.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

type memoryCache struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*Response
}

func (c *memoryCache) Name() string { return c.name }

func (c *memoryCache) Match(_ context.Context, req Request) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp, ok := c.entries[req.Key()]
	if !ok {
		return nil, ErrNotCached
	}
	return resp.Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, req Request, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[req.Key()] = resp.Clone()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, req Request) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[req.Key()]
	delete(c.entries, req.Key())
	return ok, nil
}

func (c *memoryCache) Keys(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
