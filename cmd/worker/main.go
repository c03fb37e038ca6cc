package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nikhilm/rules-rust/pkg/compiler"
	"github.com/nikhilm/rules-rust/pkg/persistentworker"
	"github.com/nikhilm/rules-rust/pkg/process"
)

const usage = `wraps a compiler so Bazel can keep it running as a persistent worker

   worker --persistent_worker --compiler PATH [--compilation_mode MODE]
   worker --compiler PATH @ARGFILE`

// options is the startup configuration parsed from the command line.
type options struct {
	persistentWorker bool
	compiler         string
	compilationMode  string
	protocol         persistentworker.Protocol
	argfile          string
}

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// run executes the worker and returns the process exit code. stdout carries
// the worker protocol; everything else is written to stderr.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := newLogger(stderr)
	defer logger.Sync()

	// Captured before anything else can touch the process environment.
	env := process.Assemble(os.Environ())

	exitCode := 1
	app := &cli.App{
		Name:        "worker",
		Usage:       "persistent worker for a compiler",
		UsageText:   usage,
		HideHelp:    true,
		HideVersion: true,
		Writer:      stderr,
		ErrWriter:   stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "persistent_worker",
				Usage: "Serve work requests on stdin/stdout until the stream closes.",
			},
			&cli.StringFlag{
				Name:  "compiler",
				Usage: "The compiler to run for each action.",
			},
			&cli.StringFlag{
				Name:  "compilation_mode",
				Usage: "Enables incremental compilation, with state kept separately per mode.",
			},
			&cli.StringFlag{
				Name:  "worker_protocol",
				Usage: "Wire format of work requests. One of [proto,json].",
				Value: string(persistentworker.ProtocolProto),
			},
		},
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return err
		},
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			opts, err := parseOptions(c)
			if err != nil {
				return err
			}
			code, err := opts.execute(c.Context, env, stdin, stdout, logger)
			exitCode = code
			return err
		},
	}

	if err := app.RunContext(ctx, args); err != nil {
		if errors.Is(err, persistentworker.ErrInputClosed) {
			logger.Info("work request stream closed, exiting")
		} else {
			logger.Error("worker failed", zap.Error(err))
		}
		return exitCode
	}
	return exitCode
}

func parseOptions(c *cli.Context) (options, error) {
	protocol, err := persistentworker.ParseProtocol(c.String("worker_protocol"))
	if err != nil {
		return options{}, err
	}
	argfile, err := persistentworker.FindArgfile(c.Args().Slice())
	if err != nil {
		return options{}, err
	}
	opts := options{
		persistentWorker: c.Bool("persistent_worker"),
		compiler:         c.String("compiler"),
		compilationMode:  c.String("compilation_mode"),
		protocol:         protocol,
		argfile:          argfile,
	}

	switch {
	case opts.compiler == "":
		return options{}, fmt.Errorf("--compiler flag missing argument")
	case opts.persistentWorker && opts.argfile != "":
		return options{}, fmt.Errorf("--persistent_worker cannot be combined with an argfile")
	case !opts.persistentWorker && opts.argfile == "":
		return options{}, fmt.Errorf("expected --persistent_worker or an @argfile")
	}
	opts.compiler = resolveCompiler(opts.compiler)
	return opts, nil
}

func (o options) execute(ctx context.Context, env process.Environment, stdin io.Reader, stdout io.Writer, logger *zap.Logger) (int, error) {
	if !o.persistentWorker {
		return runStandalone(ctx, o.compiler, o.argfile, env)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return 1, fmt.Errorf("determining working directory: %w", err)
	}
	handler := compiler.NewHandler(compiler.Config{
		Compiler:        o.compiler,
		CompilationMode: o.compilationMode,
		WorkDir:         workDir,
		InstanceID:      uuid.NewString(),
		Env:             env,
	}, compiler.WithLogger(logger))

	worker := persistentworker.NewWorker(handler,
		persistentworker.WithProtocol(o.protocol),
		persistentworker.WithInput(stdin),
		persistentworker.WithOutput(stdout),
		persistentworker.WithLogger(logger),
	)
	return 1, worker.Run(ctx)
}

// newLogger returns a console logger writing to w.
func newLogger(w io.Writer) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.InfoLevel,
	)
	return zap.New(core).Named("worker")
}
