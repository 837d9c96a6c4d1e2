package ir

import (
	"strings"
	"unicode"
)

// SentinelMessage is the message name whose fields keep their declared
// names on the wire.
const SentinelMessage = "msgHdr"

// CamelCase converts a declared field name to its JSON form:
// account_number -> accountNumber. Names without separators only have
// their first rune lowered.
func CamelCase(name string) string {
	parts := splitParts(name)
	if len(parts) == 0 {
		return ""
	}
	parts[0] = lowerFirst(parts[0])
	for i := 1; i < len(parts); i++ {
		parts[i] = title(parts[i])
	}
	return strings.Join(parts, "")
}

// JSONName is the wire name of a field declared in the message named
// messageName.
func JSONName(messageName, fieldName string) string {
	if messageName == SentinelMessage {
		return fieldName
	}
	return CamelCase(fieldName)
}

func PascalCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i := range parts {
		parts[i] = title(parts[i])
	}
	return strings.Join(parts, "")
}

// Namespace derives the output namespace of a file. The package always
// wins; override is used only for files without one.
func Namespace(pkg, override, baseName string) string {
	if pkg != "" {
		segs := strings.Split(pkg, ".")
		for i := range segs {
			segs[i] = PascalCase(segs[i])
		}
		return strings.Join(segs, ".")
	}
	if override != "" {
		return override
	}
	return PascalCase(baseName)
}

func splitParts(name string) []string {
	if name == "" {
		return nil
	}
	if strings.ContainsAny(name, "_-") {
		return strings.FieldsFunc(name, func(r rune) bool {
			return r == '_' || r == '-'
		})
	}
	return []string{name}
}

func title(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
