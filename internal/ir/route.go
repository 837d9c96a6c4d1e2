package ir

import (
	"strconv"
	"strings"
	"unicode"
)

// KebabCase converts a PascalCase method name to its URL form. A separator
// goes before each upper-case run start and at every letter/digit boundary,
// except that "N2" is kept together.
func KebabCase(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "_-") {
		parts := strings.FieldsFunc(s, func(r rune) bool {
			return r == '_' || r == '-'
		})
		for i := range parts {
			parts[i] = strings.ToLower(parts[i])
		}
		return strings.Join(parts, "-")
	}

	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if i > 0 {
			prev := r[i-1]
			switch {
			case unicode.IsUpper(c):
				prevUpper := unicode.IsUpper(prev)
				nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
				if !prevUpper || nextLower {
					b.WriteByte('-')
				}
			case unicode.IsDigit(c) && unicode.IsLetter(prev):
				if !(prev == 'N' && c == '2') {
					b.WriteByte('-')
				}
			case unicode.IsLetter(c) && unicode.IsDigit(prev):
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return out
}

// SplitVersion strips a trailing V<digits> suffix and returns the stem and
// version. Names without a suffix are version 1.
func SplitVersion(method string) (string, int) {
	i := len(method)
	for i > 0 && method[i-1] >= '0' && method[i-1] <= '9' {
		i--
	}
	if i == len(method) || i < 2 || method[i-1] != 'V' {
		return method, 1
	}
	n, err := strconv.Atoi(method[i:])
	if err != nil || n < 1 {
		n = 1
	}
	return method[:i-1], n
}

// Route is the POST path of an RPC: {base}/{kebab-method}/v{n}.
func Route(baseName, method string) string {
	stem, version := SplitVersion(method)
	return baseName + "/" + KebabCase(stem) + "/v" + strconv.Itoa(version)
}
