package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend. A batch runs under one lock so it
// has the same all-or-nothing visibility as a Redis transaction.
type MemoryBackend struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	// failNext makes the next n Exec calls fail; used to exercise retries.
	failNext int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

// FailNextExecs makes the next n batches fail without applying anything.
func (m *MemoryBackend) FailNextExecs(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

func (m *MemoryBackend) Exec(ctx context.Context, cmds []Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(cmds)
}

func (m *MemoryBackend) ExecIfNotNewer(ctx context.Context, key string, version int64, cmds []Command) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := parseVersion(m.hashes[key]); ok && cached > version {
		return false, nil
	}
	if err := m.applyLocked(cmds); err != nil {
		return false, err
	}
	return true, nil
}

// applyLocked runs a batch all-or-nothing. Callers hold m.mu.
func (m *MemoryBackend) applyLocked(cmds []Command) error {
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("memory cache: injected failure")
	}
	for _, c := range cmds {
		switch c.Op {
		case OpHSet, OpDel, OpSAdd, OpSRem:
		default:
			return fmt.Errorf("memory cache: unsupported op %q", c.Op)
		}
	}
	for _, c := range cmds {
		switch c.Op {
		case OpHSet:
			h, ok := m.hashes[c.Key]
			if !ok {
				h = make(map[string]string, len(c.Fields))
				m.hashes[c.Key] = h
			}
			for k, v := range c.Fields {
				h[k] = v
			}
		case OpDel:
			delete(m.hashes, c.Key)
			delete(m.sets, c.Key)
		case OpSAdd:
			s, ok := m.sets[c.Key]
			if !ok {
				s = make(map[string]struct{}, len(c.Members))
				m.sets[c.Key] = s
			}
			for _, mem := range c.Members {
				s[mem] = struct{}{}
			}
		case OpSRem:
			s, ok := m.sets[c.Key]
			if !ok {
				continue
			}
			for _, mem := range c.Members {
				delete(s, mem)
			}
			if len(s) == 0 {
				delete(m.sets, c.Key)
			}
		}
	}
	return nil
}

func (m *MemoryBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyHash(m.hashes[key]), nil
}

func (m *MemoryBackend) HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = copyHash(m.hashes[k])
	}
	return out, nil
}

func (m *MemoryBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sets[key]
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

// Keys lists every live key, sorted. Tests use it to assert nothing leaked.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.hashes)+len(m.sets))
	for k := range m.hashes {
		out = append(out, k)
	}
	for k := range m.sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryBackend) Close() error { return nil }

func copyHash(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
