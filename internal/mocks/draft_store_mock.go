package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"artnote-server/internal/models"
)

// MockFieldStore is a mock type for the FieldStore type
type MockFieldStore struct {
	mock.Mock
}

// SaveFields provides a mock function with given fields: ctx, key, state
func (_m *MockFieldStore) SaveFields(ctx context.Context, key string, state models.DraftState) error {
	ret := _m.Called(ctx, key, state)
	return ret.Error(0)
}

// LoadFields provides a mock function with given fields: ctx, key
func (_m *MockFieldStore) LoadFields(ctx context.Context, key string) (models.DraftState, bool, error) {
	ret := _m.Called(ctx, key)

	var r0 models.DraftState
	if rf, ok := ret.Get(0).(func(context.Context, string) models.DraftState); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(models.DraftState)
	}
	return r0, ret.Bool(1), ret.Error(2)
}

// ClearFields provides a mock function with given fields: ctx, key
func (_m *MockFieldStore) ClearFields(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}

// MockImageStore is a mock type for the ImageStore type
type MockImageStore struct {
	mock.Mock
}

// SaveImages provides a mock function with given fields: ctx, key, assets
func (_m *MockImageStore) SaveImages(ctx context.Context, key string, assets []models.ImageAsset) error {
	ret := _m.Called(ctx, key, assets)
	return ret.Error(0)
}

// LoadImages provides a mock function with given fields: ctx, key
func (_m *MockImageStore) LoadImages(ctx context.Context, key string) ([]models.ImageAsset, error) {
	ret := _m.Called(ctx, key)

	var r0 []models.ImageAsset
	if rf, ok := ret.Get(0).(func(context.Context, string) []models.ImageAsset); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.ImageAsset)
	}
	return r0, ret.Error(1)
}

// ClearImages provides a mock function with given fields: ctx, key
func (_m *MockImageStore) ClearImages(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}
