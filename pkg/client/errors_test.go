package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestStatusError_Class(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   ErrorClass
	}{
		{name: "not found", statusCode: http.StatusNotFound, expected: ErrorClassClient},
		{name: "too many requests", statusCode: http.StatusTooManyRequests, expected: ErrorClassClient},
		{name: "internal server error", statusCode: http.StatusInternalServerError, expected: ErrorClassServer},
		{name: "bad gateway", statusCode: http.StatusBadGateway, expected: ErrorClassServer},
		{name: "not modified", statusCode: http.StatusNotModified, expected: ErrorClassStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &StatusError{StatusCode: tt.statusCode}
			if got := err.Class(); got != tt.expected {
				t.Errorf("Class() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{StatusCode: 503, URL: "http://upstream/a"}
	msg := err.Error()

	if !strings.Contains(msg, "503 Service Unavailable") {
		t.Errorf("Error() = %q, want status text", msg)
	}
	if !strings.Contains(msg, "http://upstream/a") {
		t.Errorf("Error() = %q, want URL", msg)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{
			name:     "plain error is network",
			err:      errors.New("connection refused"),
			expected: ErrorClassNetwork,
		},
		{
			name:     "status error",
			err:      &StatusError{StatusCode: 500},
			expected: ErrorClassServer,
		},
		{
			name:     "status error wrapped with stack",
			err:      pkgerrors.WithStack(&StatusError{StatusCode: 404}),
			expected: ErrorClassClient,
		},
		{
			name:     "status error wrapped with fmt",
			err:      fmt.Errorf("fetch: %w", &StatusError{StatusCode: 502}),
			expected: ErrorClassServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.expected {
				t.Errorf("classify() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRetryExhaustedError(t *testing.T) {
	last := &StatusError{StatusCode: 500, URL: "http://upstream/a"}
	err := error(&RetryExhaustedError{Key: "http://upstream/a", Attempts: 3, Last: last})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) should be true")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatal("errors.As should find the last StatusError")
	}
	if statusErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", statusErr.StatusCode)
	}

	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Error() = %q, want attempt count", err.Error())
	}
}
