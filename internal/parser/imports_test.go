package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveImportsSearchesImporterDirFirst(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, nestedImports)
	writeFiles(t, dir, map[string]string{
		"lib/c.proto": "syntax = \"proto3\";\npackage lib;\n",
	})

	imports, err := resolveImports(dir, []string{"a.proto"}, []string{dir, filepath.Join(dir, "lib")})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a.proto":     filepath.Join(dir, "a.proto"),
		"sub/b.proto": filepath.Join(dir, "sub", "b.proto"),
		"c.proto":     filepath.Join(dir, "sub", "c.proto"),
	}, imports.paths)
	assert.Empty(t, imports.path("google/protobuf/timestamp.proto"))
}

func TestResolveImportsRejectsAmbiguousNames(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto":     "syntax = \"proto3\";\nimport \"c.proto\";\nimport \"sub/b.proto\";\n",
		"c.proto":     "syntax = \"proto3\";\n",
		"sub/b.proto": "syntax = \"proto3\";\nimport \"c.proto\";\n",
		"sub/c.proto": "syntax = \"proto3\";\n",
	})

	_, err := resolveImports(dir, []string{"a.proto"}, []string{dir})
	var target *schema.ParseError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, filepath.Join(dir, "sub", "b.proto"), target.File)
	assert.Equal(t, 2, target.Line)
	assert.ErrorContains(t, err, `import "c.proto"`)
}

func TestResolveImportsLeavesMissingToCompiler(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.proto": "syntax = \"proto3\";\nimport \"missing.proto\";\nmessage A {}\n",
	})

	imports, err := resolveImports(dir, []string{"a.proto"}, nil)
	require.NoError(t, err)
	assert.Len(t, imports.paths, 1)

	p := &DescriptorParser{}
	_, err = p.Parse(context.Background(), []string{filepath.Join(dir, "a.proto")})
	var target *schema.ParseError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, filepath.Join(dir, "a.proto"), target.File)
	assert.Equal(t, 2, target.Line)
}

func TestMaterializeLaysOutImportNames(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, nestedImports)
	imports, err := resolveImports(dir, []string{"a.proto"}, []string{dir})
	require.NoError(t, err)

	root := t.TempDir()
	require.NoError(t, imports.materialize(root))
	for _, name := range []string{"a.proto", "sub/b.proto", "c.proto"} {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		want, err := os.ReadFile(imports.path(name))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}

	imports.paths["../escape.proto"] = filepath.Join(dir, "a.proto")
	assert.ErrorContains(t, imports.materialize(t.TempDir()), "leaves the import root")
}
