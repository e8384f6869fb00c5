package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		// typed errors
		{"context deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrTimeout},
		{"os not exist", fmt.Errorf("open: %w", os.ErrNotExist), ErrNotFound},
		{"os permission", fmt.Errorf("open: %w", os.ErrPermission), ErrPermissionDenied},

		// timeout
		{"operation timed out", errors.New("operation timed out"), ErrTimeout},
		{"timeout in message", errors.New("connection timeout after 30s"), ErrTimeout},

		// access denied is checked before permission denied
		{"AccessDenied response", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"HTTP 403", errors.New("received status 403"), ErrAccessDenied},
		{"permission denied", errors.New("permission denied for /archive"), ErrPermissionDenied},
		{"EACCES errno", errors.New("open /tmp/file: EACCES"), ErrPermissionDenied},

		// disk full
		{"no space left", errors.New("write /archive: no space left on device"), ErrDiskFull},
		{"quota exceeded", errors.New("quota exceeded for user"), ErrDiskFull},

		// not found
		{"NoSuchKey S3", errors.New("NoSuchKey: The specified key does not exist"), ErrNotFound},
		{"NoSuchBucket S3", errors.New("NoSuchBucket: bucket missing"), ErrNotFound},

		// throttling
		{"SlowDown S3", errors.New("SlowDown: please reduce request rate"), ErrThrottled},
		{"HTTP 429", errors.New("received status 429"), ErrThrottled},

		// auth
		{"NoCredentialProviders", errors.New("NoCredentialProviders: no valid providers"), ErrAuth},
		{"ExpiredToken", errors.New("ExpiredToken: the security token has expired"), ErrAuth},

		// network
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
		{"DNS failure", errors.New("DNS lookup failed for bucket.s3.amazonaws.com"), ErrNetwork},

		// fallback
		{"unrecognized", errors.New("something completely unexpected happened"), ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestWrapError(t *testing.T) {
	if wrapError(nil, "put", "p") != nil {
		t.Error("wrapError(nil) should be nil")
	}

	base := errors.New("no space left on device")
	err := wrapError(base, "put", "recordings/a.bin")

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Op != "put" || se.Path != "recordings/a.bin" {
		t.Errorf("Op=%q Path=%q", se.Op, se.Path)
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Error("expected ErrDiskFull classification")
	}
	if !errors.Is(err, base) {
		t.Error("underlying error should be preserved")
	}

	// Already classified errors pass through unchanged.
	if again := wrapError(err, "get", "other"); again != err {
		t.Error("wrapError should not re-wrap a StorageError")
	}
}
