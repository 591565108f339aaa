// Package mocks provides test doubles for the gtrends client.
package mocks

import (
	"context"

	gtrends "github.com/sells-group/eva-cli/pkg/gtrends"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// InterestOverTime provides a mock function with given fields: ctx, q
func (_m *MockClient) InterestOverTime(ctx context.Context, q gtrends.Query) (*gtrends.Series, error) {
	ret := _m.Called(ctx, q)

	if len(ret) == 0 {
		panic("no return value specified for InterestOverTime")
	}

	var r0 *gtrends.Series
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, gtrends.Query) (*gtrends.Series, error)); ok {
		return rf(ctx, q)
	}
	if rf, ok := ret.Get(0).(func(context.Context, gtrends.Query) *gtrends.Series); ok {
		r0 = rf(ctx, q)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gtrends.Series)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, gtrends.Query) error); ok {
		r1 = rf(ctx, q)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ResetSession provides a mock function with no fields
func (_m *MockClient) ResetSession() {
	_m.Called()
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
