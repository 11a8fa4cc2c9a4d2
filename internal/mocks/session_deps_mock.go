package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"artnote-server/internal/models"
)

// MockObjectStore is a mock type for the ObjectStore type
type MockObjectStore struct {
	mock.Mock
}

// Upload provides a mock function with given fields: ctx, data, contentType
func (_m *MockObjectStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, data, contentType)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, []byte, string) string); ok {
		r0 = rf(ctx, data, contentType)
	} else {
		r0 = ret.String(0)
	}
	return r0, ret.Error(1)
}

// MockMessageStore is a mock type for the MessageStore type
type MockMessageStore struct {
	mock.Mock
}

// ReplaceActiveMessage provides a mock function with given fields: ctx, studentID, teacherID, content
func (_m *MockMessageStore) ReplaceActiveMessage(ctx context.Context, studentID, teacherID string, content models.MessageContent) (*models.MessageRecord, error) {
	ret := _m.Called(ctx, studentID, teacherID, content)

	var r0 *models.MessageRecord
	if rf, ok := ret.Get(0).(func(context.Context, string, string, models.MessageContent) *models.MessageRecord); ok {
		r0 = rf(ctx, studentID, teacherID, content)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.MessageRecord)
	}
	return r0, ret.Error(1)
}

// MockTemplateStore is a mock type for the TemplateStore type
type MockTemplateStore struct {
	mock.Mock
}

// GetTemplate provides a mock function with given fields: ctx, topicID
func (_m *MockTemplateStore) GetTemplate(ctx context.Context, topicID uuid.UUID) (*models.TemplateSource, error) {
	ret := _m.Called(ctx, topicID)

	var r0 *models.TemplateSource
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID) *models.TemplateSource); ok {
		r0 = rf(ctx, topicID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.TemplateSource)
	}
	return r0, ret.Error(1)
}

// MockEventPublisher is a mock type for the EventPublisher type
type MockEventPublisher struct {
	mock.Mock
}

// PublishMessageCommitted provides a mock function with given fields: ctx, event
func (_m *MockEventPublisher) PublishMessageCommitted(ctx context.Context, event models.MessageCommittedEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}
