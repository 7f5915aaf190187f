package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
// Si Func esta definido tiene prioridad sobre Response/Err.
type MockClient struct {
	Response string
	Err      error
	Func     func(req ChatRequest) (string, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockClient) Generate(ctx context.Context, req ChatRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Func != nil {
		return m.Func(req)
	}
	return m.Response, m.Err
}

// Requests devuelve una copia de las solicitudes recibidas.
func (m *MockClient) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// Calls cuenta las llamadas recibidas.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
