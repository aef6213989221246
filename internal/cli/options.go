package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

type Mode string

const (
	ModeNone    Mode = ""
	ModeExtract Mode = "x"
	ModeList    Mode = "t"
)

type CompressionHint string

const (
	CompressionAuto  CompressionHint = "auto"
	CompressionNone  CompressionHint = "none"
	CompressionGzip  CompressionHint = "gzip"
	CompressionBzip2 CompressionHint = "bzip2"
	CompressionXz    CompressionHint = "xz"
	CompressionZstd  CompressionHint = "zstd"
	CompressionLz4   CompressionHint = "lz4"
)

// OverwritePolicy decides what happens when an entry's target exists.
type OverwritePolicy string

const (
	OverwriteDefault OverwritePolicy = ""
	OverwriteAsk     OverwritePolicy = "ask"
	OverwriteAlways  OverwritePolicy = "always"
	OverwriteNever   OverwritePolicy = "never"
)

func ParseOverwritePolicy(v string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case OverwriteAsk, OverwriteAlways, OverwriteNever:
		return p, nil
	default:
		return OverwriteDefault, fmt.Errorf("invalid overwrite policy %q (want ask, always or never)", v)
	}
}

// ErrorPolicy decides whether the queue moves on after a failed archive.
type ErrorPolicy string

const (
	OnErrorDefault  ErrorPolicy = ""
	OnErrorAsk      ErrorPolicy = "ask"
	OnErrorContinue ErrorPolicy = "continue"
	OnErrorAbort    ErrorPolicy = "abort"
)

func ParseErrorPolicy(v string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case OnErrorAsk, OnErrorContinue, OnErrorAbort:
		return p, nil
	default:
		return OnErrorDefault, fmt.Errorf("invalid error policy %q (want ask, continue or abort)", v)
	}
}

type Options struct {
	Mode    Mode
	Verbose bool
	Help    bool
	// Archives are the positional arguments, one per split archive.
	Archives []string
	Chdir    string

	Format      string
	Compression CompressionHint
	// ChunkSize of zero means the configured default.
	ChunkSize int

	Overwrite   OverwritePolicy
	OnError     ErrorPolicy
	RemoveParts bool

	StripComponents int
	Include         []string
	Exclude         []string
	ExcludeFrom     []string

	Xattrs          bool
	SameOwner       *bool
	SamePermissions *bool
	UnsafeLinks     bool

	LogLevel string
	LogFile  string
	EnvFile  string
}

func Parse(args []string) (Options, error) {
	opts := Options{Compression: CompressionAuto}
	if len(args) == 0 {
		return opts, fmt.Errorf("no operation mode specified")
	}

	if legacyToken(args[0]) {
		args = append([]string{"-" + args[0]}, args[1:]...)
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			opts.Archives = append(opts.Archives, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			opts.Archives = append(opts.Archives, a)
			continue
		}
		if strings.HasPrefix(a, "--") {
			name, value, hasValue := strings.Cut(a[2:], "=")
			var err error
			switch name {
			case "format":
				opts.Format, i, err = resolveValue(name, value, hasValue, args, i)
			case "chunk-size":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.ChunkSize, err = parseSize(name, v)
				}
			case "overwrite":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.Overwrite, err = ParseOverwritePolicy(v)
				}
			case "keep-old-files":
				opts.Overwrite = OverwriteNever
			case "on-error":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.OnError, err = ParseErrorPolicy(v)
				}
			case "keep-going":
				opts.OnError = OnErrorContinue
			case "remove-parts":
				opts.RemoveParts = true
			case "strip-components":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					n, perr := strconv.Atoi(v)
					if perr != nil || n < 0 {
						err = fmt.Errorf("option --strip-components requires a non-negative integer")
					}
					opts.StripComponents = n
				}
			case "include":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.Include = append(opts.Include, v)
				}
			case "exclude":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.Exclude = append(opts.Exclude, v)
				}
			case "exclude-from":
				var v string
				if v, i, err = resolveValue(name, value, hasValue, args, i); err == nil {
					opts.ExcludeFrom = append(opts.ExcludeFrom, v)
				}
			case "xattrs":
				opts.Xattrs = true
			case "same-owner":
				b := true
				opts.SameOwner = &b
			case "no-same-owner":
				b := false
				opts.SameOwner = &b
			case "same-permissions":
				b := true
				opts.SamePermissions = &b
			case "no-same-permissions":
				b := false
				opts.SamePermissions = &b
			case "unsafe-links":
				opts.UnsafeLinks = true
			case "zstd":
				opts.Compression = CompressionZstd
			case "lz4":
				opts.Compression = CompressionLz4
			case "log-level":
				opts.LogLevel, i, err = resolveValue(name, value, hasValue, args, i)
			case "log-file":
				opts.LogFile, i, err = resolveValue(name, value, hasValue, args, i)
			case "env-file":
				opts.EnvFile, i, err = resolveValue(name, value, hasValue, args, i)
			case "help":
				opts.Help = true
			default:
				return opts, fmt.Errorf("unsupported option --%s", name)
			}
			if err != nil {
				return opts, err
			}
			continue
		}

		shorts := a[1:]
		for j := 0; j < len(shorts); j++ {
			s := shorts[j]
			switch s {
			case 'x':
				if err := setMode(&opts, ModeExtract); err != nil {
					return opts, err
				}
			case 't':
				if err := setMode(&opts, ModeList); err != nil {
					return opts, err
				}
			case 'v':
				opts.Verbose = true
			case 'h':
				opts.Help = true
			case 'k':
				opts.Overwrite = OverwriteNever
			case 'z':
				opts.Compression = CompressionGzip
			case 'j':
				opts.Compression = CompressionBzip2
			case 'J':
				opts.Compression = CompressionXz
			case 'C':
				if j+1 < len(shorts) {
					opts.Chdir = shorts[j+1:]
				} else {
					i++
					if i >= len(args) {
						return opts, fmt.Errorf("option -%c requires an argument", s)
					}
					opts.Chdir = args[i]
				}
				j = len(shorts)
			default:
				return opts, fmt.Errorf("unsupported option -%c", s)
			}
		}
	}

	if opts.Help {
		return opts, nil
	}
	if opts.Mode == ModeNone {
		return opts, fmt.Errorf("no operation mode specified")
	}
	if len(opts.Archives) == 0 {
		return opts, fmt.Errorf("no archive specified")
	}
	return opts, nil
}

func legacyToken(v string) bool {
	if strings.HasPrefix(v, "-") || v == "" {
		return false
	}
	for _, r := range v {
		switch r {
		case 'x', 't', 'v', 'k', 'C', 'z', 'j', 'J':
		default:
			return false
		}
	}
	return true
}

func setMode(opts *Options, mode Mode) error {
	if opts.Mode != ModeNone && opts.Mode != mode {
		return fmt.Errorf("multiple operation modes specified")
	}
	opts.Mode = mode
	return nil
}

func resolveValue(name, inline string, hasInline bool, args []string, i int) (string, int, error) {
	if hasInline {
		return inline, i, nil
	}
	i++
	if i >= len(args) {
		return "", i, fmt.Errorf("option --%s requires a value", name)
	}
	return args[i], i, nil
}

// ParseSize accepts a byte count such as 65536, 64KiB or 1MB.
func ParseSize(v string) (int, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(v))
	if err != nil || n == 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("invalid size %q", v)
	}
	return int(n), nil
}

func parseSize(name, v string) (int, error) {
	n, err := ParseSize(v)
	if err != nil {
		return 0, fmt.Errorf("option --%s requires a positive size", name)
	}
	return n, nil
}
