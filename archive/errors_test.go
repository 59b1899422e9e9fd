package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{timeoutError{}, ErrTimeout},
		{context.DeadlineExceeded, ErrTimeout},
		{&fs.PathError{Op: "open", Path: "/archive", Err: syscall.EACCES}, ErrPermissionDenied},
		{&fs.PathError{Op: "stat", Path: "/archive", Err: syscall.ENOENT}, ErrNotFound},
		{&fs.PathError{Op: "write", Path: "/archive", Err: syscall.ENOSPC}, ErrDiskFull},
		{errors.New("open /archive/x: permission denied"), ErrPermissionDenied},
		{errors.New("operation error S3: PutObject, StatusCode: 403, AccessDenied"), ErrAccessDenied},
		{errors.New("NoSuchBucket: the specified bucket does not exist"), ErrNotFound},
		{errors.New("write /archive/x: no space left on device"), ErrDiskFull},
		{errors.New("SlowDown: please reduce your request rate"), ErrThrottled},
		{errors.New("failed to refresh cached credentials"), ErrAuth},
		{errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), ErrNetwork},
		{errors.New("something else"), errUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("no such file or directory")
	err := wrapError("read", "fleet", cause)

	if !errors.Is(err, ErrNotFound) {
		t.Error("should match its classification")
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to the cause")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "read" {
		t.Fatalf("errors.As = %v", err)
	}
	if want := "read fleet: not found: no such file or directory"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if wrapError("read", "", nil) != nil {
		t.Error("nil error should stay nil")
	}
	if got := fmt.Sprint(wrapError("init", "", cause)); got != "init: not found: no such file or directory" {
		t.Errorf("no path: %q", got)
	}
}
