package model

import (
	"context"
	"sync"
)

// MockAdapter is a test implementation of Adapter.
//
// Use MockAdapter in tests to verify executor behavior without making
// actual provider API calls. It provides configurable responses, call
// history tracking, error injection, and thread-safe operation.
//
// Example usage:
//
//	mock := &MockAdapter{
//	    Responses: []Response{
//	        {Text: "First response"},
//	        {Text: "Second response"},
//	    },
//	}
//	out, err := mock.Complete(ctx, req)
//	// Returns "First response", then "Second response" on subsequent calls
type MockAdapter struct {
	// Provider is the name reported by Name(). Defaults to "mock".
	Provider string

	// Responses contains the sequence of responses to return.
	// If all responses are consumed, the last response repeats.
	Responses []Response

	// Err, if set, is returned by Complete() instead of a response.
	Err error

	// Calls tracks the history of all Complete() invocations.
	Calls []Request

	mu        sync.Mutex
	callIndex int
}

// Name implements Adapter.
func (m *MockAdapter) Name() string {
	if m.Provider == "" {
		return "mock"
	}
	return m.Provider
}

// Complete implements Adapter. Always records the call in Calls history
// regardless of success or failure.
func (m *MockAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Response{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of times Complete() has been called.
func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears the call history and response index so the mock can be
// reused across test cases.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}
