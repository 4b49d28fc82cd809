// Package mocks provides test doubles for the sms sender.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	sms "github.com/sells-group/sokoprice/internal/sms"
)

// MockSender is a mock type for the Sender interface.
type MockSender struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, to, message
func (_m *MockSender) Send(ctx context.Context, to string, message string) sms.Result {
	ret := _m.Called(ctx, to, message)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 sms.Result
	if rf, ok := ret.Get(0).(func(context.Context, string, string) sms.Result); ok {
		r0 = rf(ctx, to, message)
	} else {
		r0 = ret.Get(0).(sms.Result)
	}

	return r0
}

// NewMockSender creates a new instance of MockSender.
func NewMockSender(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSender {
	mock := &MockSender{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
