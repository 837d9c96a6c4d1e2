package ir

// Program owns every message and enum of one run in flat arenas. Nesting is
// expressed through Parent indices so siblings can reference each other
// without ownership cycles.
type Program struct {
	Files    []*File
	Messages []*Message
	Enums    []*Enum
}

type File struct {
	Path      string
	Name      string
	BaseName  string
	RelDir    string
	Package   string
	Namespace string
	Input     bool
	Imports   []int
	Messages  []int
	Enums     []int
	Services  []*Service
}

// Empty reports whether the file declares nothing to emit.
func (f *File) Empty() bool {
	return len(f.Messages) == 0 && len(f.Enums) == 0 && len(f.Services) == 0
}

type Enum struct {
	Name     string
	FullName string
	File     int
	Parent   int
	Values   []EnumValue
}

type EnumValue struct {
	Name   string
	Number int32
}

type Message struct {
	Name     string
	FullName string
	File     int
	Parent   int
	Fields   []*Field
	Messages []int
	Enums    []int
}

type Field struct {
	Name     string
	JSONName string
	Number   int
	Repeated bool
	Type     TypeRef
}

type Service struct {
	Name    string
	Methods []*Method
}

type Method struct {
	Name            string
	Input           TypeRef
	Output          TypeRef
	ClientStreaming bool
	ServerStreaming bool
}

func (m *Method) IsUnary() bool {
	return !m.ClientStreaming && !m.ServerStreaming
}

// UnaryMethods returns the methods that produce client members.
func (s *Service) UnaryMethods() []*Method {
	var out []*Method
	for _, m := range s.Methods {
		if m.IsUnary() {
			out = append(out, m)
		}
	}
	return out
}

// TypeRef is a resolved field or method type. Index points into
// Program.Messages or Program.Enums for KindMessage and KindEnum.
type TypeRef struct {
	Kind      Kind
	Index     int
	WellKnown string
}

type Kind int

const (
	KindBool Kind = iota
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindSint32
	KindSint64
	KindFixed32
	KindFixed64
	KindSfixed32
	KindSfixed64
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindMessage
	KindEnum
	KindWellKnown
)

var scalarKinds = map[string]Kind{
	"bool":     KindBool,
	"int32":    KindInt32,
	"int64":    KindInt64,
	"uint32":   KindUint32,
	"uint64":   KindUint64,
	"sint32":   KindSint32,
	"sint64":   KindSint64,
	"fixed32":  KindFixed32,
	"fixed64":  KindFixed64,
	"sfixed32": KindSfixed32,
	"sfixed64": KindSfixed64,
	"float":    KindFloat,
	"double":   KindDouble,
	"string":   KindString,
	"bytes":    KindBytes,
}

// ScalarKind maps a proto scalar keyword to its Kind.
func ScalarKind(name string) (Kind, bool) {
	k, ok := scalarKinds[name]
	return k, ok
}

func (k Kind) IsScalar() bool {
	return k <= KindBytes
}

// MessagePath returns the dotted name of a message relative to its file's
// namespace, e.g. "Outer.Inner".
func (p *Program) MessagePath(idx int) string {
	m := p.Messages[idx]
	if m.Parent < 0 {
		return m.Name
	}
	return p.MessagePath(m.Parent) + "." + m.Name
}

func (p *Program) EnumPath(idx int) string {
	e := p.Enums[idx]
	if e.Parent < 0 {
		return e.Name
	}
	return p.MessagePath(e.Parent) + "." + e.Name
}

// MessageChain lists idx and its enclosing messages, innermost first.
func (p *Program) MessageChain(idx int) []int {
	var chain []int
	for idx >= 0 {
		chain = append(chain, idx)
		idx = p.Messages[idx].Parent
	}
	return chain
}
