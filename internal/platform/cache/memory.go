package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultMaxEntries = 100000

// Memory is a bounded in-process Cache. When full, the oldest inserted entry
// is evicted. Expired entries are removed lazily on access and during eviction.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = oldest
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero = never
}

type MemoryOption func(*Memory)

// WithMaxEntries bounds the number of live entries.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-process cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(key) != nil {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return 0, ErrMiss
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

func (m *Memory) IncrWithExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		m.put(key, []byte("1"), ttl)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Len returns the number of stored entries, including not yet collected expired ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (m *Memory) live(key string) *memoryEntry {
	el, ok := m.items[key]
	if !ok {
		return nil
	}
	e := el.Value.(*memoryEntry)
	if m.expired(e) {
		m.remove(el)
		return nil
	}
	return e
}

func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = stored
		e.expiresAt = expiresAt
		m.order.MoveToBack(el)
		return
	}

	for len(m.items) >= m.maxEntries {
		m.evictOne()
	}
	m.items[key] = m.order.PushBack(&memoryEntry{key: key, value: stored, expiresAt: expiresAt})
}

// evictOne removes an expired entry if one is found near the front, otherwise
// the oldest entry.
func (m *Memory) evictOne() {
	const scan = 8
	el := m.order.Front()
	for i := 0; el != nil && i < scan; i++ {
		if m.expired(el.Value.(*memoryEntry)) {
			m.remove(el)
			return
		}
		el = el.Next()
	}
	if front := m.order.Front(); front != nil {
		m.remove(front)
	}
}

func (m *Memory) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *Memory) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}
