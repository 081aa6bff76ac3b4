package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"unexpected status should not retry", ErrorClassUnexpected, false},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &FetchError{
				ErrorClass: ErrorClassNetwork,
				Message:    "fetch /",
				Err:        errors.New("connection refused"),
			},
			expected: "origin network error (status 0): fetch /: connection refused",
		},
		{
			name: "status error",
			err: &FetchError{
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: "origin server error (status 503): 503 Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Is(t *testing.T) {
	network := &FetchError{ErrorClass: ErrorClassNetwork, Err: errors.New("dial")}
	server := &FetchError{ErrorClass: ErrorClassServer, StatusCode: 500}

	if !errors.Is(network, ErrNetworkUnavailable) {
		t.Error("network error should match ErrNetworkUnavailable")
	}
	if errors.Is(server, ErrNetworkUnavailable) {
		t.Error("server error should not match ErrNetworkUnavailable")
	}
}

func TestStatusError(t *testing.T) {
	if StatusError(&http.Response{StatusCode: 200}) != nil {
		t.Error("2xx should not produce an error")
	}
	if StatusError(nil) != nil {
		t.Error("nil response should not produce an error")
	}
	err := StatusError(&http.Response{StatusCode: 404, Status: "404 Not Found"})
	if err == nil || err.ErrorClass != ErrorClassClient || err.StatusCode != 404 {
		t.Errorf("StatusError(404) = %v", err)
	}
}
