package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad input"), false},
		{"429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"503 wrapped", eris.Wrap(&googleapi.Error{Code: 503}, "sheet: write"), true},
		{"401", &googleapi.Error{Code: http.StatusUnauthorized}, true},
		{"403", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsRetryableStatus(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsRetryableStatus(code) {
			t.Errorf("expected %d not to be retryable", code)
		}
	}
}
