package llm

import (
	"context"

	"gemini-chat/internal/domain"
)

// MockGenerator permite tests sin llamar al proveedor real.
type MockGenerator struct {
	Result Result
	Err    error

	Calls       int
	LastHistory []domain.Message
	LastModel   string
}

func (m *MockGenerator) Generate(_ context.Context, history []domain.Message, model string) (Result, error) {
	m.Calls++
	m.LastHistory = history
	m.LastModel = model
	return m.Result, m.Err
}
