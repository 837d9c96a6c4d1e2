package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/jptrs93/protohttp/internal/generate"
	"github.com/jptrs93/protohttp/internal/parser"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "PROTOHTTP_"

// Config is the effective configuration of one run. Values are layered:
// Default, then a YAML file, then PROTOHTTP_ environment variables, then
// flags set on the command line.
type Config struct {
	Proto      string           `yaml:"proto" env:"PROTO"`
	Out        string           `yaml:"out" env:"OUT"`
	Namespace  string           `yaml:"namespace" env:"NAMESPACE"`
	Profile    generate.Profile `yaml:"profile" env:"PROFILE"`
	ProtoPaths []string         `yaml:"proto_path" env:"PROTO_PATH"`
	Parser     string           `yaml:"parser" env:"PARSER"`
	Protoc     string           `yaml:"protoc" env:"PROTOC"`
	Timeout    time.Duration    `yaml:"timeout" env:"TIMEOUT"`
	Jobs       int              `yaml:"jobs" env:"JOBS"`
	JSONSchema bool             `yaml:"json_schema" env:"JSON_SCHEMA"`
	Exclude    []string         `yaml:"exclude" env:"EXCLUDE"`
	LogLevel   string           `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat  string           `yaml:"log_format" env:"LOG_FORMAT"`
}

func Default() Config {
	return Config{
		Profile:    generate.ProfileAsync,
		Parser:     parser.StrategyDescriptor,
		Protoc:     "protoc",
		Timeout:    30 * time.Second,
		Jobs:       runtime.GOMAXPROCS(0),
		JSONSchema: true,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load returns the defaults overlaid with the YAML file at path and the
// environment. An empty path falls back to PROTOHTTP_CONFIG; no file at
// all is fine.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// RegisterFlags binds the command line flags to c.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Proto, "proto", c.Proto, "proto file or directory (required)")
	fs.StringVar(&c.Out, "out", c.Out, "output directory (required)")
	fs.StringVar(&c.Namespace, "namespace", c.Namespace, "namespace for files without a package")
	fs.TextVar(&c.Profile, "profile", c.Profile, "client profile: async or sync")
	fs.Var((*stringList)(&c.ProtoPaths), "proto_path", "extra import root (repeatable)")
	fs.StringVar(&c.Parser, "parser", c.Parser, "parser strategy: descriptor, protoc or text")
	fs.StringVar(&c.Protoc, "protoc", c.Protoc, "protoc binary for the protoc parser")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "timeout for parsing with a toolchain")
	fs.IntVar(&c.Jobs, "jobs", c.Jobs, "number of files processed in parallel")
	fs.BoolVar(&c.JSONSchema, "json_schema", c.JSONSchema, "also write JSON Schema documents")
	fs.Var((*stringList)(&c.Exclude), "exclude", "glob of proto files to skip, relative to -proto (repeatable)")
	fs.StringVar(&c.LogLevel, "log_level", c.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log_format", c.LogFormat, "log format: text or json")
}

// ApplyFlags copies into c every field whose flag was set explicitly on
// fs. flagged must be the config the flags were registered on.
func (c *Config) ApplyFlags(fs *flag.FlagSet, flagged *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "proto":
			c.Proto = flagged.Proto
		case "out":
			c.Out = flagged.Out
		case "namespace":
			c.Namespace = flagged.Namespace
		case "profile":
			c.Profile = flagged.Profile
		case "proto_path":
			c.ProtoPaths = flagged.ProtoPaths
		case "parser":
			c.Parser = flagged.Parser
		case "protoc":
			c.Protoc = flagged.Protoc
		case "timeout":
			c.Timeout = flagged.Timeout
		case "jobs":
			c.Jobs = flagged.Jobs
		case "json_schema":
			c.JSONSchema = flagged.JSONSchema
		case "exclude":
			c.Exclude = flagged.Exclude
		case "log_level":
			c.LogLevel = flagged.LogLevel
		case "log_format":
			c.LogFormat = flagged.LogFormat
		}
	})
}

func (c Config) Validate() error {
	var errs []error
	if c.Proto == "" {
		errs = append(errs, errors.New("proto is required"))
	}
	if c.Out == "" {
		errs = append(errs, errors.New("out is required"))
	}
	if !c.Profile.Valid() {
		errs = append(errs, fmt.Errorf("unknown profile %q (want async or sync)", c.Profile))
	}
	switch c.Parser {
	case parser.StrategyDescriptor, parser.StrategyProtoc, parser.StrategyText:
	default:
		errs = append(errs, fmt.Errorf("unknown parser %q (want descriptor, protoc or text)", c.Parser))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be at least 1, got %d", c.Jobs))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the run logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
