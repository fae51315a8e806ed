package cache

import (
	"container/list"
	"context"
	"sync"

	"k8s.io/klog/v2"
)

// Pressure is a memory-pressure level.
type Pressure int

const (
	// Nominal requires no action.
	Nominal Pressure = iota
	// Warning evicts roughly half of the tracked entries, oldest first.
	Warning
	// Critical flushes every cache.
	Critical
)

func (p Pressure) String() string {
	switch p {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	}
	return "nominal"
}

type tracked struct {
	id    string
	bytes int64
	evict func()
}

// Manager tracks the estimated footprint of every registered cache entry, in
// the order entries were first tracked, and evicts under memory pressure.
// Caches call into the manager while holding their own lock; the manager never
// calls back into a cache while holding its lock.
type Manager struct {
	mu       sync.Mutex
	entries  *list.List
	index    map[string]*list.Element
	total    int64
	clearers map[string]func()
	names    []string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		entries:  list.New(),
		index:    map[string]*list.Element{},
		clearers: map[string]func(){},
	}
}

func (m *Manager) register(name string, clear func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clearers[name]; !ok {
		m.names = append(m.names, name)
	}
	m.clearers[name] = clear
}

// Track records bytes for id. Tracking an existing id updates its size but keeps its age.
func (m *Manager) Track(id string, bytes int64, evict func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.index[id]; ok {
		t := e.Value.(*tracked)
		m.total += bytes - t.bytes
		t.bytes = bytes
		t.evict = evict
		return
	}
	m.index[id] = m.entries.PushBack(&tracked{id: id, bytes: bytes, evict: evict})
	m.total += bytes
}

// Untrack forgets id. Unknown ids are ignored.
func (m *Manager) Untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.index[id]
	if !ok {
		return
	}
	m.total -= e.Value.(*tracked).bytes
	m.entries.Remove(e)
	delete(m.index, id)
}

// Bytes returns the estimated total footprint.
func (m *Manager) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Len returns the number of tracked entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Evict drops the oldest fraction of tracked entries across all caches and
// returns how many were evicted.
func (m *Manager) Evict(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	m.mu.Lock()
	n := int(float64(m.entries.Len()) * fraction)
	if fraction >= 1 {
		n = m.entries.Len()
	}
	victims := make([]*tracked, 0, n)
	for i := 0; i < n; i++ {
		e := m.entries.Front()
		t := e.Value.(*tracked)
		m.entries.Remove(e)
		delete(m.index, t.id)
		m.total -= t.bytes
		victims = append(victims, t)
	}
	m.mu.Unlock()

	for _, t := range victims {
		klog.V(1).Infof("evicting %s (%d bytes)", t.id, t.bytes)
		t.evict()
	}
	return len(victims)
}

// Clear flushes every registered cache.
func (m *Manager) Clear() {
	m.Evict(1)
	m.mu.Lock()
	clearers := make([]func(), 0, len(m.names))
	for _, n := range m.names {
		clearers = append(clearers, m.clearers[n])
	}
	m.mu.Unlock()
	for _, c := range clearers {
		c()
	}
}

// Signal responds to a pressure level.
func (m *Manager) Signal(p Pressure) {
	switch p {
	case Warning:
		n := m.Evict(0.5)
		klog.Warningf("memory pressure %s: evicted %d entries, %d bytes still tracked", p, n, m.Bytes())
	case Critical:
		m.Clear()
		klog.Warningf("memory pressure %s: flushed all caches", p)
	}
}

// Watch handles pressure events from ch until ctx is done or ch is closed.
func (m *Manager) Watch(ctx context.Context, ch <-chan Pressure) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			m.Signal(p)
		}
	}
}
