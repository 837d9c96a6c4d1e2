package config

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jptrs93/protohttp/internal/generate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protohttp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, generate.ProfileAsync, cfg.Profile)
	assert.Equal(t, "descriptor", cfg.Parser)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.JSONSchema)
	assert.GreaterOrEqual(t, cfg.Jobs, 1)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
proto: ./api
out: ./gen
profile: sync
proto_path: [third_party, vendor]
timeout: 5s
json_schema: false
`)
	t.Setenv("PROTOHTTP_OUT", "./from-env")
	t.Setenv("PROTOHTTP_JOBS", "3")
	t.Setenv("PROTOHTTP_EXCLUDE", "a/**,b/**")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./api", cfg.Proto)
	assert.Equal(t, "./from-env", cfg.Out)
	assert.Equal(t, generate.ProfileSync, cfg.Profile)
	assert.Equal(t, []string{"third_party", "vendor"}, cfg.ProtoPaths)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Jobs)
	assert.False(t, cfg.JSONSchema)
	assert.Equal(t, []string{"a/**", "b/**"}, cfg.Exclude)
	assert.Equal(t, "descriptor", cfg.Parser)

	var flagged Config
	fs := flag.NewFlagSet("protohttp", flag.ContinueOnError)
	flagged.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-out", "./from-flag", "-proto_path", "x", "-proto_path", "y", "-profile", "async"}))
	cfg.ApplyFlags(fs, &flagged)
	assert.Equal(t, "./from-flag", cfg.Out)
	assert.Equal(t, []string{"x", "y"}, cfg.ProtoPaths)
	assert.Equal(t, generate.ProfileAsync, cfg.Profile)
	assert.Equal(t, 3, cfg.Jobs, "unset flags keep lower layers")
	assert.Equal(t, "./api", cfg.Proto)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, "namespace: Contoso.Api\n")
	t.Setenv("PROTOHTTP_CONFIG", path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Contoso.Api", cfg.Namespace)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: ./api\n"))
	assert.ErrorContains(t, err, "prot")

	_, err = Load(writeConfig(t, "profile: net20\n"))
	assert.ErrorContains(t, err, "unknown profile")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	t.Setenv("PROTOHTTP_JOBS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "read environment")
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Proto = "api"
	valid.Out = "gen"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"missing proto", func(c *Config) { c.Proto = "" }, "proto is required"},
		{"missing out", func(c *Config) { c.Out = "" }, "out is required"},
		{"profile", func(c *Config) { c.Profile = "net40" }, "unknown profile"},
		{"parser", func(c *Config) { c.Parser = "regex" }, "unknown parser"},
		{"jobs", func(c *Config) { c.Jobs = 0 }, "jobs must be at least 1"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "file", "a.proto")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"file":"a.proto"`)

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger(io.Discard)
	assert.Error(t, err)
}
