package templates

import "embed"

//go:embed *.tmpl
var FS embed.FS
