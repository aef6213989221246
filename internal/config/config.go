// Package config reads UNSPLIT_* defaults from the environment and an
// optional dotenv file. Command line flags take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/islishude/unsplit/internal/cli"
)

const (
	EnvChunkSize = "UNSPLIT_CHUNK_SIZE"
	EnvOverwrite = "UNSPLIT_OVERWRITE"
	EnvOnError   = "UNSPLIT_ON_ERROR"
	EnvLogLevel  = "UNSPLIT_LOG_LEVEL"
	EnvLogFile   = "UNSPLIT_LOG_FILE"
	EnvEnvFile   = "UNSPLIT_ENV_FILE"

	DefaultChunkSize = 32 << 10
	defaultEnvFile   = ".env"
)

type Config struct {
	ChunkSize int
	Overwrite cli.OverwritePolicy
	OnError   cli.ErrorPolicy
	LogLevel  string
	LogFile   string
}

func Default() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Overwrite: cli.OverwriteAsk,
		OnError:   cli.OnErrorAbort,
		LogLevel:  "info",
	}
}

// Load merges envFile into the process environment without overriding
// variables already set, then reads the UNSPLIT_* keys. An empty envFile
// falls back to UNSPLIT_ENV_FILE, then to ./.env if it exists.
func Load(envFile string) (Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = strings.TrimSpace(os.Getenv(EnvEnvFile))
		explicit = envFile != ""
	}
	if !explicit {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if v := strings.TrimSpace(os.Getenv(EnvChunkSize)); v != "" {
		n, err := cli.ParseSize(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvChunkSize, err)
		}
		cfg.ChunkSize = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvOverwrite)); v != "" {
		p, err := cli.ParseOverwritePolicy(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvOverwrite, err)
		}
		cfg.Overwrite = p
	}
	if v := strings.TrimSpace(os.Getenv(EnvOnError)); v != "" {
		p, err := cli.ParseErrorPolicy(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvOnError, err)
		}
		cfg.OnError = p
	}
	cfg.LogLevel = defaultString(os.Getenv(EnvLogLevel), cfg.LogLevel)
	cfg.LogFile = strings.TrimSpace(os.Getenv(EnvLogFile))
	return cfg, nil
}

// Apply fills the options the command line left unset.
func (c Config) Apply(opts *cli.Options) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = c.ChunkSize
	}
	if opts.Overwrite == cli.OverwriteDefault {
		opts.Overwrite = c.Overwrite
	}
	if opts.OnError == cli.OnErrorDefault {
		opts.OnError = c.OnError
	}
	if opts.LogLevel == "" {
		opts.LogLevel = c.LogLevel
	}
	if opts.LogFile == "" {
		opts.LogFile = c.LogFile
	}
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
