package progress

import (
	"context"
	"sync"

	"github.com/roach88/contest/internal/config"
)

// Memory is an in-process Store. It keeps the encoded form so that it
// exercises the same decode path as the on-disk store.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) get(key string) config.StageSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeSet(m.values[key])
}

func (m *Memory) set(key string, s config.StageSet) error {
	data, err := encodeSet(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) SolvedStages(context.Context) (config.StageSet, error) {
	return m.get(KeySolvedStages), nil
}

func (m *Memory) SetSolvedStages(_ context.Context, s config.StageSet) error {
	return m.set(KeySolvedStages, s)
}

func (m *Memory) FirstRiddleSolved(context.Context) (config.StageSet, error) {
	return m.get(KeyFirstRiddleSolved), nil
}

func (m *Memory) SetFirstRiddleSolved(_ context.Context, s config.StageSet) error {
	return m.set(KeyFirstRiddleSolved, s)
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	delete(m.values, KeySolvedStages)
	delete(m.values, KeyFirstRiddleSolved)
	m.mu.Unlock()
	return nil
}

// Raw overwrites a key with arbitrary bytes. Tests use it to simulate a
// corrupt cache.
func (m *Memory) Raw(key string, data []byte) {
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
}
