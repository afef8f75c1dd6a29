package util

import (
	"io"
	"net/http"
)

// Provides utility types and functions for tests

// ------------------------------------

// CreateMockRequest creates a basic mock HTTP request for testing
func CreateMockRequest(method string, path string, query map[string]string, body io.Reader, headers map[string]string) *http.Request {
	req, _ := http.NewRequest(method, path, body)
	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// ------------------------------------

type MockLogger struct {
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(msg string, args ...any) {
	// Mock implementation - no-op
}

func (m *MockLogger) Info(msg string, args ...any) {
	// Mock implementation - no-op
}

func (m *MockLogger) Warn(msg string, args ...any) {
	// Mock implementation - no-op
}

func (m *MockLogger) Error(msg string, args ...any) {
	// Mock implementation - no-op
}
