package util

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("extract: %w", ErrUnsupportedFileType), "UNSUPPORTED_FILE_TYPE"},
		{fmt.Errorf("%w: openai 503", ErrProviderUnavailable), "PROVIDER_UNAVAILABLE"},
		{fmt.Errorf("job: %w", ErrTimeoutApproaching), "TIMEOUT_APPROACHING"},
		{fmt.Errorf("insert lab report: %w", ErrPersistenceFailed), "PERSISTENCE_FAILED"},
		{errors.New("boom"), "PROCESSING_ERROR"},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Fatalf("code for %q: got %s want %s", c.err, got, c.want)
		}
	}
	if ErrorCode(nil) != "" {
		t.Fatalf("nil error should have empty code")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(fmt.Errorf("x: %w", ErrTimeoutApproaching)) {
		t.Fatalf("timeout approaching must not be retryable")
	}
	if !IsRetryable(fmt.Errorf("x: %w", ErrProviderUnavailable)) {
		t.Fatalf("provider unavailable should be retryable")
	}
	if !IsRetryable(fmt.Errorf("x: %w", ErrDownloadFailed)) {
		t.Fatalf("download failure should be retryable")
	}
}

func TestEscalatable(t *testing.T) {
	if Escalatable(ErrUnsupportedFileType) {
		t.Fatalf("unsupported type cannot be fixed by escalation")
	}
	if !Escalatable(fmt.Errorf("parse: %w", ErrMalformedResponse)) {
		t.Fatalf("malformed response should escalate")
	}
}
