// Package config holds flatimg's run configuration.
//
// Defaults come from the environment so a kernel build can set them once;
// command line flags override them.
//
//	FLATIMG_STRICT=1         fail unless segments are packed back to back
//	FLATIMG_VERIFY=1         replay the boot copy and check the result
//	FLATIMG_FORMAT=nasm      metadata syntax: nasm, c or gas
//	FLATIMG_LOG_LEVEL=info   debug, info, warn or error
//	FLATIMG_LOAD_BASE=0      simulated load address for FLATIMG_VERIFY
package config

import (
	"strconv"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/meta"
)

// Environment variable names.
const (
	EnvStrict   = "FLATIMG_STRICT"
	EnvVerify   = "FLATIMG_VERIFY"
	EnvFormat   = "FLATIMG_FORMAT"
	EnvLogLevel = "FLATIMG_LOG_LEVEL"
	EnvLoadBase = "FLATIMG_LOAD_BASE"
)

// Config is the fully resolved configuration of one run.
type Config struct {
	InputPath    string
	ImagePath    string
	MetadataPath string
	Format       meta.Syntax
	LogLevel     zapcore.Level
	LoadBase     uint32
	Strict       bool
	Verify       bool
	Report       bool
	Interactive  bool
}

// Raw holds unvalidated string settings as they arrive from the
// environment or flags.
type Raw struct {
	Format   string
	LogLevel string
	LoadBase string
	Strict   bool
	Verify   bool
}

// FromEnv reads defaults from the environment as it is at call time.
func FromEnv() Raw {
	env.Load()
	return Raw{
		Strict:   env.Bool(EnvStrict),
		Verify:   env.Bool(EnvVerify),
		Format:   env.Str(EnvFormat, string(meta.SyntaxNASM)),
		LogLevel: env.Str(EnvLogLevel, "info"),
		LoadBase: env.Str(EnvLoadBase, "0"),
	}
}

// Resolve validates raw settings and the three positional paths.
func Resolve(raw Raw, args []string) (*Config, error) {
	if len(args) != 3 {
		return nil, errors.Usage("expected 3 arguments <input-image> <output-flat-image> <output-metadata>, got %d", len(args))
	}
	for i, a := range args {
		if a == "" {
			return nil, errors.Usage("argument %d is empty", i+1)
		}
	}
	if args[1] == args[2] {
		return nil, errors.Usage("flat image and metadata must be different files")
	}

	format, err := meta.ParseSyntax(raw.Format)
	if err != nil {
		return nil, err
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw.LogLevel)); err != nil {
		return nil, errors.Usage("invalid log level %q", raw.LogLevel)
	}

	base, err := strconv.ParseUint(raw.LoadBase, 0, 32)
	if err != nil {
		return nil, errors.Usage("invalid load base %q", raw.LoadBase)
	}

	return &Config{
		InputPath:    args[0],
		ImagePath:    args[1],
		MetadataPath: args[2],
		Format:       format,
		LogLevel:     level,
		LoadBase:     uint32(base),
		Strict:       raw.Strict,
		Verify:       raw.Verify,
	}, nil
}
