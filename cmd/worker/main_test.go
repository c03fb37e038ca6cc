package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilm/rules-rust/pkg/persistentworker"
)

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// stubCompiler writes an executable shell script and returns its path.
func stubCompiler(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(dir, "rustc.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func requestStream(requests ...persistentworker.WorkRequest) *bytes.Buffer {
	var buf bytes.Buffer
	for _, req := range requests {
		if err := persistentworker.WriteFrame(&buf, persistentworker.MarshalWorkRequest(req)); err != nil {
			panic(err)
		}
	}
	return &buf
}

func responses(t *testing.T, r io.Reader) []persistentworker.WorkResponse {
	t.Helper()
	reader := bufio.NewReader(r)
	var out []persistentworker.WorkResponse
	for {
		payload, err := persistentworker.ReadFrame(reader)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		resp, err := persistentworker.UnmarshalWorkResponse(payload)
		require.NoError(t, err)
		out = append(out, resp)
	}
}

func TestRun_PersistentWorker(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	compiler := stubCompiler(t, dir, "printf 'boom' >&2\nexit 2\n")
	in := requestStream(persistentworker.WorkRequest{RequestId: 7, Arguments: []string{"--flag"}})
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--persistent_worker", "--compiler", compiler}, in, &out, &stderr)

	assert.Equal(t, 1, code)
	assert.Equal(t, []persistentworker.WorkResponse{{RequestId: 7, ExitCode: 2, Output: "boom"}}, responses(t, &out))
	assert.Contains(t, stderr.String(), "work request stream closed")

	leftovers, err := filepath.Glob(filepath.Join(dir, "stderr_*.log"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRun_PersistentWorkerIncremental(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	workDir, err := os.Getwd()
	require.NoError(t, err)
	compiler := stubCompiler(t, dir, `printf '%s\n' "$@" >&2`)
	in := requestStream(
		persistentworker.WorkRequest{RequestId: 1, Arguments: []string{"--target=foo"}},
		persistentworker.WorkRequest{RequestId: 2, Arguments: []string{"--target=bar"}},
	)
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--persistent_worker", "--compiler=" + compiler, "--compilation_mode", "dbg"}, in, &out, &stderr)
	require.Equal(t, 1, code)

	resps := responses(t, &out)
	require.Len(t, resps, 2)
	assert.Equal(t, "--target=foo\n--codegen\nincremental="+filepath.Join(workDir, "incremental", "foo", "dbg")+"\n", resps[0].Output)
	assert.Equal(t, "--target=bar\n--codegen\nincremental="+filepath.Join(workDir, "incremental", "bar", "dbg")+"\n", resps[1].Output)
}

func TestRun_PersistentWorkerJSON(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	compiler := stubCompiler(t, dir, "printf 'warning' >&2\n")
	in := strings.NewReader(`{"arguments":["src/lib.rs"],"requestId":3}`)
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--persistent_worker", "--worker_protocol=json", "--compiler", compiler}, in, &out, &stderr)

	assert.Equal(t, 1, code)
	assert.JSONEq(t, `{"exitCode":0,"output":"warning","requestId":3}`, out.String())
}

func TestRun_LaunchErrorTerminatesWorker(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in := requestStream(
		persistentworker.WorkRequest{RequestId: 1},
		persistentworker.WorkRequest{RequestId: 2},
	)
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--persistent_worker", "--compiler", filepath.Join(dir, "missing")}, in, &out, &stderr)

	assert.Equal(t, 1, code)
	assert.Zero(t, out.Len())
	assert.Contains(t, stderr.String(), "failed to launch")
}

func TestRun_Standalone(t *testing.T) {
	dir := t.TempDir()
	compiler := stubCompiler(t, dir, `[ "$1" = "--crate-name=foo" ] && [ "$2" = "src/lib.rs" ] || exit 9
exit 5
`)
	argfile := filepath.Join(dir, "rustc.params")
	require.NoError(t, os.WriteFile(argfile, []byte("--crate-name=foo\nsrc/lib.rs\n"), 0o644))
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--compiler", compiler, "@" + argfile}, strings.NewReader(""), &out, &stderr)

	assert.Equal(t, 5, code)
	assert.Empty(t, stderr.String())
}

func TestRun_StandaloneMissingArgfile(t *testing.T) {
	dir := t.TempDir()
	compiler := stubCompiler(t, dir, "exit 0\n")
	var out, stderr bytes.Buffer

	code := run(context.Background(), []string{"worker", "--compiler", compiler, "@" + filepath.Join(dir, "missing.params")}, strings.NewReader(""), &out, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "failed to read argfile")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown flag", args: []string{"--persistent_worker", "--compiler", "rustc", "--frobnicate"}, want: "flag provided but not defined"},
		{name: "worker with argfile", args: []string{"--persistent_worker", "--compiler", "rustc", "@args.params"}, want: "cannot be combined"},
		{name: "missing compiler", args: []string{"--persistent_worker"}, want: "--compiler"},
		{name: "no mode", args: []string{"--compiler", "rustc"}, want: "expected --persistent_worker"},
		{name: "stray argument", args: []string{"--compiler", "rustc", "src/lib.rs"}, want: "unknown argument"},
		{name: "bad protocol", args: []string{"--persistent_worker", "--compiler", "rustc", "--worker_protocol", "xml"}, want: "unsupported worker protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, stderr bytes.Buffer

			code := run(context.Background(), append([]string{"worker"}, tt.args...), strings.NewReader(""), &out, &stderr)

			assert.Equal(t, 1, code)
			assert.Zero(t, out.Len(), "nothing may be written to the protocol stream")
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestResolveCompiler(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "rustc")
	require.NoError(t, os.WriteFile(existing, nil, 0o755))
	assert.Equal(t, existing, resolveCompiler(existing))

	runfilesDir := filepath.Join(dir, "worker.runfiles")
	inRunfiles := filepath.Join(runfilesDir, "rust_toolchain", "bin", "rustc")
	require.NoError(t, os.MkdirAll(filepath.Dir(inRunfiles), 0o755))
	require.NoError(t, os.WriteFile(inRunfiles, nil, 0o755))
	t.Setenv("RUNFILES_MANIFEST_FILE", "")
	t.Setenv("RUNFILES_DIR", runfilesDir)

	assert.Equal(t, inRunfiles, resolveCompiler("rust_toolchain/bin/rustc"))
	assert.Equal(t, "rust_toolchain/bin/missing", resolveCompiler("rust_toolchain/bin/missing"))
}
