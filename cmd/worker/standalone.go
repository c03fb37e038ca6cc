package main

import (
	"context"

	"github.com/nikhilm/rules-rust/pkg/persistentworker"
	"github.com/nikhilm/rules-rust/pkg/process"
)

// runStandalone runs the compiler once with the arguments from argfile. The
// compiler shares the worker's stdout and stderr, and its exit code becomes
// the worker's.
func runStandalone(ctx context.Context, compilerPath, argfile string, env process.Environment) (int, error) {
	args, err := persistentworker.ReadArgfile(argfile)
	if err != nil {
		return 1, err
	}
	code, err := process.Exec(ctx, process.Command{
		Path: compilerPath,
		Args: args,
		Env:  env,
	})
	if err != nil {
		return 1, err
	}
	return code, nil
}
