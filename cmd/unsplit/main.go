package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/islishude/unsplit/internal/cli"
	"github.com/islishude/unsplit/internal/config"
	"github.com/islishude/unsplit/internal/engine"
	"github.com/islishude/unsplit/internal/logger"
)

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unsplit: %v\n", err)
		os.Exit(engine.ExitFatal)
	}
	if opts.Help {
		_, _ = fmt.Fprint(os.Stdout, cli.HelpText(filepath.Base(os.Args[0])))
		os.Exit(0)
	}

	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unsplit: %v\n", err)
		os.Exit(engine.ExitFatal)
	}
	cfg.Apply(&opts)

	logger.Init(logger.Options{Level: opts.LogLevel, File: opts.LogFile})

	basectx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)

	console := engine.NewConsole(os.Stdin, os.Stdout, os.Stderr, opts.Verbose, opts.Overwrite, opts.OnError)
	result := engine.New(afero.NewOsFs(), console, os.Stdout, os.Stderr).Run(basectx, opts)
	cancel()
	if result.Err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unsplit: %v\n", result.Err)
	}
	_ = logger.Close()
	os.Exit(result.ExitCode)
}
