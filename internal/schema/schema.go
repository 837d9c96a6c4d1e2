// Package schema holds the raw model produced by the proto ingestion
// strategies, before any type resolution.
package schema

import (
	"path/filepath"
	"strings"
)

type Set struct {
	Files  []*File
	Inputs []string
}

// Index returns the position in Files of the file with the given absolute
// path.
func (s *Set) Index(path string) (int, bool) {
	for i, f := range s.Files {
		if f.Path == path {
			return i, true
		}
	}
	return -1, false
}

// IsInput reports whether path was one of the requested inputs rather than
// a file reached only through imports.
func (s *Set) IsInput(path string) bool {
	for _, in := range s.Inputs {
		if in == path {
			return true
		}
	}
	return false
}

type File struct {
	Path     string
	Name     string
	Package  string
	Imports  []Import
	Messages []*Message
	Enums    []*Enum
	Services []*Service
}

// BaseName is the file name without directory and .proto extension.
func (f *File) BaseName() string {
	return strings.TrimSuffix(filepath.Base(f.Path), ".proto")
}

type Import struct {
	Path     string
	Resolved string
	Public   bool
}

type Message struct {
	Name     string
	Line     int
	Fields   []*Field
	Messages []*Message
	Enums    []*Enum
}

type Field struct {
	Name     string
	Line     int
	Number   int
	Repeated bool
	Map      bool
	Type     string
}

type Enum struct {
	Name   string
	Line   int
	Values []EnumValue
}

type EnumValue struct {
	Name   string
	Number int32
}

type Service struct {
	Name    string
	Line    int
	Methods []*Method
}

type Method struct {
	Name            string
	Line            int
	Input           string
	Output          string
	ClientStreaming bool
	ServerStreaming bool
}

// Scalars maps proto scalar keywords to themselves; used to tell scalars
// apart from type references in Field.Type.
var Scalars = map[string]bool{
	"double":   true,
	"float":    true,
	"int32":    true,
	"int64":    true,
	"uint32":   true,
	"uint64":   true,
	"sint32":   true,
	"sint64":   true,
	"fixed32":  true,
	"fixed64":  true,
	"sfixed32": true,
	"sfixed64": true,
	"bool":     true,
	"string":   true,
	"bytes":    true,
}

// WellKnownPrefix is the package of the bundled google protobuf types.
const WellKnownPrefix = "google/protobuf/"
