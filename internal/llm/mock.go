package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un proveedor real.
// Si Vectors tiene una entrada para el texto la devuelve; si no, devuelve Vector.
type MockClient struct {
	mu      sync.Mutex
	Vector  []float32
	Vectors map[string][]float32
	Err     error
	Calls   []string
}

func (m *MockClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return nil, m.Err
	}
	if v, ok := m.Vectors[text]; ok {
		return v, nil
	}
	return m.Vector, nil
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
