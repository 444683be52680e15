package dsum

import "fmt"

// ConfigError reports a bad option or argument combination. It is always
// returned before any scanning or comparison work begins.
type ConfigError struct {
	msg string
}

// NewConfigError formats a ConfigError.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string { return "configuration error: " + e.msg }

// UnknownID is the record id used for scan errors that cannot be tied to a record.
const UnknownID int64 = -1

// ScanIOError is a non-fatal failure on a single entry (lstat, readdir,
// readlink or digest). The scan records it and carries on. Errors read
// back from a snapshot carry the stored text in Message only.
type ScanIOError struct {
	ID      int64
	Path    string
	Message string
	Err     error
}

func (e *ScanIOError) Error() string {
	if e.Path == "" && e.Err == nil {
		return e.Message
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Message, e.Path, e.Err)
}

func (e *ScanIOError) Unwrap() error { return e.Err }
