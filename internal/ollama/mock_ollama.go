package ollama

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of Generator using testify/mock.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Token, error) {
	args := m.Called(ctx, req)
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if models := args.Get(0); models != nil {
		return models.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) Health(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// TokenStream builds a closed channel preloaded with the given tokens,
// convenient for stubbing GenerateStream in handler tests.
func TokenStream(tokens ...Token) <-chan Token {
	ch := make(chan Token, len(tokens))
	for _, tok := range tokens {
		ch <- tok
	}
	close(ch)
	return ch
}
