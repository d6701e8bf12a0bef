package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/wippyai/flatimg/artifact"
	"github.com/wippyai/flatimg/bootsim"
	"github.com/wippyai/flatimg/builder"
	"github.com/wippyai/flatimg/config"
	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/layout"
	"github.com/wippyai/flatimg/report"
)

var version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	raw := config.FromEnv()

	var (
		paths       []string
		verbose     bool
		showReport  bool
		interactive bool
	)

	app := kingpin.New("flatimg", "Flatten the loadable segments of an ELF executable into a raw memory image for a bootloader.").
		UsageWriter(stderr).
		ErrorWriter(stderr)
	app.Version(version)
	app.HelpFlag.Short('h')

	exited := false
	app.Terminate(func(int) { exited = true })

	app.Flag("strict", "Fail unless loadable segments are packed back to back in virtual memory.").
		Default(fmt.Sprint(raw.Strict)).BoolVar(&raw.Strict)
	app.Flag("verify", "Replay the bootloader copy in a sandboxed memory and check the image.").
		Default(fmt.Sprint(raw.Verify)).BoolVar(&raw.Verify)
	app.Flag("load-base", "Load address used by --verify.").
		Default(raw.LoadBase).StringVar(&raw.LoadBase)
	app.Flag("format", "Metadata syntax: nasm, c or gas.").
		Default(raw.Format).StringVar(&raw.Format)
	app.Flag("log-level", "Log level: debug, info, warn or error.").
		Default(raw.LogLevel).StringVar(&raw.LogLevel)
	app.Flag("verbose", "Shorthand for --log-level=debug.").Short('v').BoolVar(&verbose)
	app.Flag("report", "Print the flat layout after a successful build.").BoolVar(&showReport)
	app.Flag("interactive", "Browse the flat layout after a successful build.").Short('i').BoolVar(&interactive)
	app.Arg("paths", "<input-image> <output-flat-image> <output-metadata>").StringsVar(&paths)

	_, err := app.Parse(args)
	if exited {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "flatimg: %v\n", errors.Usage("%v", err))
		return exitUsage
	}
	if verbose {
		raw.LogLevel = "debug"
	}

	cfg, err := config.Resolve(raw, paths)
	if err != nil {
		fmt.Fprintf(stderr, "flatimg: %v\n", err)
		app.Usage(args)
		return exitUsage
	}
	cfg.Report = showReport
	cfg.Interactive = interactive

	log := newLogger(stderr, cfg.LogLevel)
	defer log.Sync()
	installLogger(log)

	res, err := builder.Build(ctx, fs, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "flatimg: %v\n", err)
		if errors.KindOf(err) == errors.KindUsage {
			return exitUsage
		}
		return exitError
	}

	if cfg.Report {
		style := report.Plain
		if f, ok := stdout.(*os.File); ok {
			style = report.StyleFor(f)
		}
		if err := report.Write(stdout, res, style); err != nil {
			fmt.Fprintf(stderr, "flatimg: %v\n", err)
			return exitError
		}
	}

	if cfg.Interactive {
		if err := runInteractive(fs, cfg, res); err != nil {
			fmt.Fprintf(stderr, "flatimg: %v\n", err)
			return exitError
		}
	}

	return exitOK
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core).Named("flatimg")
}

func installLogger(log *zap.Logger) {
	layout.SetLogger(log.Named("layout"))
	artifact.SetLogger(log.Named("artifact"))
	bootsim.SetLogger(log.Named("bootsim"))
	builder.SetLogger(log.Named("builder"))
}
