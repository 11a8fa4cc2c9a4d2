package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"artnote-server/internal/generation"
)

// MockGenerator is a mock type for the Generator type
type MockGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, generation.Request) string); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, generation.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, systemPrompt, userInput, params
func (_m *MockAIClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, params generation.GenerationParams) (string, generation.UsageInfo, error) {
	ret := _m.Called(ctx, systemPrompt, userInput, params)

	var r1 generation.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(generation.UsageInfo)
	}
	return ret.String(0), r1, ret.Error(2)
}
