package llm

import "context"

// MockExtractor implements EntityExtractor with a function field for tests.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, req ExtractRequest) ([]Extraction, []byte, error)
}

func (m *MockExtractor) ExtractEntities(ctx context.Context, req ExtractRequest) ([]Extraction, []byte, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return nil, nil, nil
}
