package segment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for the segment service layer.
var (
	ErrNotFound           = errors.New("segment not found")
	ErrTransport          = errors.New("segment repository unavailable")
	ErrSubmitPending      = errors.New("a submit is already in progress")
	ErrEditorClosed       = errors.New("editor is closed")
	ErrOperatorNotAllowed = errors.New("operator not allowed for field")
	ErrRuleIndex          = errors.New("rule index out of range")
	ErrNoSegment          = errors.New("no segment to edit")
)

// ValidationError reports rejected input, either caught before the request
// was sent or returned by the repository (400, 409, 422).
type ValidationError struct {
	StatusCode int               // 0 when raised client-side
	Message    string            // optional summary from the repository
	Fields     map[string]string // field path -> reason
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return "validation failed: " + e.Message
		}
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransportError wraps network failures, timeouts, 5xx responses and bodies
// that could not be decoded. errors.Is(err, ErrTransport) matches it.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: repository returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
