// Package errors defines the error taxonomy shared by the pipeline: transient
// network failures, bad archives, unparsable documents, index integrity
// failures, and query errors. Per-item failures are non-fatal and accumulated
// into a run summary; index integrity failures abort the build.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a transient network failure; the operation is retried
	// with backoff and the archive is marked failed once retries are
	// exhausted.
	ErrNetwork = errors.New("network error")
	// ErrArchive marks a corrupt or unsupported archive entry; the entry is
	// skipped and extraction continues.
	ErrArchive = errors.New("archive error")
	// ErrParse marks malformed document content or a missing required field;
	// the document is skipped and ingestion continues.
	ErrParse = errors.New("parse error")
	// ErrIndexIO marks a structural index failure (disk, permissions,
	// corrupted segment). A half-written index cannot be trusted, so the
	// build aborts.
	ErrIndexIO = errors.New("index io error")
	// ErrQuerySyntax marks a malformed query string. No partial results are
	// returned.
	ErrQuerySyntax = errors.New("query syntax error")
	// ErrIndexUnavailable marks a query against a missing or unsealed index.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// Exit codes reported by the CLI. ExitSkipped distinguishes a run that
// finished but skipped items from a clean run.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitSkipped = 3
)

// AppError attaches context to one of the sentinel errors above.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error with a message.
func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

// Newf wraps a sentinel error with a formatted message.
func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err must abort the whole run rather than a single
// item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIndexIO)
}

// ExitCode maps err and the number of skipped items to a process exit status.
func ExitCode(err error, skipped int) int {
	switch {
	case err != nil:
		return ExitFatal
	case skipped > 0:
		return ExitSkipped
	default:
		return ExitOK
	}
}
