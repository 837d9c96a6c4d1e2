package ir

import "strings"

// Qualify returns the output type name of a message or enum reference as
// written inside file fromFile, within the class of message fromMsg (-1 for
// file level code such as clients). Nested types are addressed by their
// dotted path from the top level. When the target lives in another
// namespace, or the path's first segment would bind to a different type
// visible from the reference site, the name is the full namespace path and
// global is true: it must be written behind the global namespace qualifier
// or its first segment is looked up outward from the current namespace.
func (p *Program) Qualify(ref TypeRef, fromFile, fromMsg int) (name string, global bool) {
	var path string
	var file, root int
	var rootIsEnum bool
	switch ref.Kind {
	case KindMessage:
		path = p.MessagePath(ref.Index)
		file = p.Messages[ref.Index].File
		chain := p.MessageChain(ref.Index)
		root = chain[len(chain)-1]
	case KindEnum:
		e := p.Enums[ref.Index]
		path = p.EnumPath(ref.Index)
		file = e.File
		if e.Parent < 0 {
			root, rootIsEnum = ref.Index, true
		} else {
			chain := p.MessageChain(e.Parent)
			root = chain[len(chain)-1]
		}
	default:
		return "", false
	}

	ns := p.Files[file].Namespace
	if ns != p.Files[fromFile].Namespace {
		return ns + "." + path, true
	}
	first, _, _ := strings.Cut(path, ".")
	if fromMsg >= 0 && p.shadowed(first, root, rootIsEnum, fromMsg) {
		return ns + "." + path, true
	}
	return path, false
}

// shadowed reports whether name, looked up from inside message fromMsg,
// binds to something other than the top-level type root.
func (p *Program) shadowed(name string, root int, rootIsEnum bool, fromMsg int) bool {
	for _, c := range p.MessageChain(fromMsg) {
		m := p.Messages[c]
		if m.Name == name && (rootIsEnum || c != root) {
			return true
		}
		for _, n := range m.Messages {
			if p.Messages[n].Name == name {
				return true
			}
		}
		for _, n := range m.Enums {
			if p.Enums[n].Name == name {
				return true
			}
		}
	}
	return false
}
