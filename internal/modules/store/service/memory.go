package service

import (
	"context"
	"sync"

	"trade_engine/internal/models"
)

// Memory keeps encoded records, so a loaded record never aliases a saved one.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) (*models.EngineRecord, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(data)
}

func (m *Memory) Save(_ context.Context, key string, rec models.EngineRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}
