package schema

import (
	"fmt"
	"strings"
)

// ParseError reports malformed schema text or an import that cannot be
// resolved. Line is zero when no position is known.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TypeResolutionError reports a field or method type that names no known
// message, enum or scalar.
type TypeResolutionError struct {
	File    string
	Message string
	Member  string
	Type    string
	Hint    string
}

func (e *TypeResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s.%s: unknown type %q", e.File, e.Message, e.Member, e.Type)
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

type UnsupportedFeatureError struct {
	File    string
	Line    int
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: unsupported: %s", e.File, e.Line, e.Feature)
	}
	return fmt.Sprintf("%s: unsupported: %s", e.File, e.Feature)
}

// ToolchainUnavailableError means an external tool needed by an ingestion
// strategy could not be found or started.
type ToolchainUnavailableError struct {
	Tool string
	Err  error
}

func (e *ToolchainUnavailableError) Error() string {
	return fmt.Sprintf("toolchain %s unavailable: %v", e.Tool, e.Err)
}

func (e *ToolchainUnavailableError) Unwrap() error { return e.Err }

// EmitError is an internal consistency failure while rendering output.
type EmitError struct {
	File string
	Err  error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s: %v", e.File, e.Err)
}

func (e *EmitError) Unwrap() error { return e.Err }
