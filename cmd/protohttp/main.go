package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jptrs93/protohttp/internal/config"
	"github.com/jptrs93/protohttp/internal/pipeline"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one generation and returns the process exit code: 0 on
// success, 1 when generation fails, 2 for usage and configuration errors.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("protohttp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flagged := config.Default()
	flagged.RegisterFlags(fs)
	configPath := fs.String("config", "", "YAML config file (or "+config.EnvPrefix+"CONFIG)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "protohttp", version)
		return 0
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	cfg.ApplyFlags(fs, &flagged)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	_, err = pipeline.Run(ctx, pipeline.Options{
		Proto:      cfg.Proto,
		Out:        cfg.Out,
		Namespace:  cfg.Namespace,
		Profile:    cfg.Profile,
		ProtoPaths: cfg.ProtoPaths,
		Parser:     cfg.Parser,
		Protoc:     cfg.Protoc,
		Timeout:    cfg.Timeout,
		Jobs:       cfg.Jobs,
		JSONSchema: cfg.JSONSchema,
		Exclude:    cfg.Exclude,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
