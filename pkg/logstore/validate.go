package logstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// validateLineLimit is how many non-blank lines ValidateJSONL inspects.
const validateLineLimit = 10

// ValidationError explains why an upload was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid session file: " + e.Reason
}

// ValidateJSONL is a cheap plausibility check for uploaded session files. The
// stream must be UTF-8, contain at least one non-blank line, and its first
// ten non-blank lines must each be one JSON value. Later lines are not
// inspected. On failure the reason is one of:
//
//	failed to read file: <cause>
//	file is not valid UTF-8 text
//	file is empty
//	invalid JSON on line <n>
//
// where n counts non-blank lines from 1.
func ValidateJSONL(r io.Reader) (bool, string) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Sprintf("failed to read file: %v", err)
	}
	if !utf8.Valid(data) {
		return false, "file is not valid UTF-8 text"
	}

	seen := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		seen++
		if seen > validateLineLimit {
			break
		}
		if !json.Valid(line) {
			return false, fmt.Sprintf("invalid JSON on line %d", seen)
		}
	}
	if seen == 0 {
		return false, "file is empty"
	}
	return true, ""
}

// CheckUpload applies the size limit and ValidateJSONL to an upload body.
// It returns an error wrapping ErrFileTooLarge or a *ValidationError.
func CheckUpload(data []byte, maxSize int64) error {
	if maxSize > 0 && int64(len(data)) > maxSize {
		return fmt.Errorf("%w: %s exceeds the %s limit", ErrFileTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(maxSize)))
	}
	if ok, reason := ValidateJSONL(bytes.NewReader(data)); !ok {
		return &ValidationError{Reason: reason}
	}
	return nil
}
