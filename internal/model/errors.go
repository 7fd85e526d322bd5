package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEpisodeBlocked is wrapped by the UserInputError returned for premium or region locked episodes.
var ErrEpisodeBlocked = errors.New("episode is not available")

// UserInputError is an invalid selection or argument. Its message is shown as is.
type UserInputError struct {
	Msg string
	Err error
}

func (e *UserInputError) Error() string { return e.Msg }
func (e *UserInputError) Unwrap() error { return e.Err }

// UserInputf builds a UserInputError from a format string.
func UserInputf(format string, args ...any) *UserInputError {
	return &UserInputError{Msg: fmt.Sprintf(format, args...)}
}

// NetworkError is a transport failure or a non-success HTTP status.
type NetworkError struct {
	URL        string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable classifies the failure. Transport errors, timeouts, throttling
// and server errors are retried; other client errors are permanent.
func (e *NetworkError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooEarly,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// ManifestParseError is a malformed or unsupported playlist.
type ManifestParseError struct {
	Line int // 1-based, 0 when not tied to a line
	Msg  string
}

func (e *ManifestParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("manifest line %d: %s", e.Line, e.Msg)
	}
	return "manifest: " + e.Msg
}

// MuxError is a nonzero exit of the external muxer. Diagnostics holds the
// captured tool output and is never dropped.
type MuxError struct {
	ExitCode    int
	Err         error
	Diagnostics []string
}

func (e *MuxError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mux failed (exit %d)", e.ExitCode)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Diagnostics) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(e.Diagnostics, "\n"))
	}
	return b.String()
}

func (e *MuxError) Unwrap() error { return e.Err }

// FilesystemError is a workspace creation or write failure.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// FSError wraps err as a FilesystemError, returning nil for a nil err.
func FSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FilesystemError{Op: op, Path: path, Err: err}
}
