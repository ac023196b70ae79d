package scene

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMalformedExport is wrapped by every [MalformedExportError].
	ErrMalformedExport = errors.New("malformed export")
	// ErrUnsupportedVersion indicates an unrecognized format-version tag.
	ErrUnsupportedVersion = errors.New("unsupported export version")
	// ErrMissingRoot indicates the document has no root node.
	ErrMissingRoot = errors.New("missing root node")
	// ErrMissingField indicates a node without a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrChildrenNotArray indicates a children value that is not a sequence.
	ErrChildrenNotArray = errors.New("children is not an array")
	// ErrPropertyValue indicates a component property value of the wrong shape.
	ErrPropertyValue = errors.New("invalid property value")
)

// MalformedExportError reports structurally invalid input. Path locates the
// offending element in JSONPath-like notation, e.g. "$.document.children[2]".
type MalformedExportError struct {
	Path string
	Err  error
}

// Error implements error.
func (malformedErr *MalformedExportError) Error() string {
	return fmt.Sprintf("%s at %s: %v", ErrMalformedExport, malformedErr.Path, malformedErr.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (malformedErr *MalformedExportError) Unwrap() []error {
	return []error{ErrMalformedExport, malformedErr.Err}
}

func malformed(path string, err error) *MalformedExportError {
	return &MalformedExportError{Path: path, Err: err}
}
