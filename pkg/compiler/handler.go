// Package compiler turns work requests into invocations of the wrapped
// compiler.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nikhilm/rules-rust/pkg/persistentworker"
	"github.com/nikhilm/rules-rust/pkg/process"
)

const (
	// TargetPrefix marks the argument whose value isolates incremental state
	// per target.
	TargetPrefix = "--target="

	// IncrementalNamespace is the directory below the working directory that
	// holds all incremental compilation state.
	IncrementalNamespace = "incremental"

	// StderrUnavailable replaces the response output when the captured stderr
	// cannot be read back.
	StderrUnavailable = "[worker] Error getting stderr\n"

	incrementalFlag = "--codegen"
)

// Config holds the per-process settings of the Handler.
type Config struct {
	// Compiler is the wrapped tool.
	Compiler string
	// CompilationMode enables incremental compilation when non-empty and
	// separates its state per mode.
	CompilationMode string
	// WorkDir is where capture files and incremental state live.
	WorkDir string
	// InstanceID distinguishes the capture files of worker processes sharing
	// one WorkDir.
	InstanceID string
	// Env is the environment of every compiler invocation.
	Env process.Environment
}

// Handler implements persistentworker.Handler by running the compiler once
// per request.
type Handler struct {
	cfg    Config
	exec   process.ExecFunc
	logger *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithExecFunc replaces process.Exec.
func WithExecFunc(f process.ExecFunc) Option {
	return func(h *Handler) {
		h.exec = f
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a Handler for cfg.
func NewHandler(cfg Config, opts ...Option) *Handler {
	h := &Handler{
		cfg:    cfg,
		exec:   process.Exec,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRequest runs the compiler for req. A compiler that fails is reported
// in the response; only a compiler that cannot be launched is an error.
func (h *Handler) HandleRequest(ctx context.Context, req persistentworker.WorkRequest) (persistentworker.WorkResponse, error) {
	stderrFile := h.StderrPath(req.RequestId)
	exitCode, err := h.exec(ctx, process.Command{
		Path:   h.cfg.Compiler,
		Args:   h.CommandLine(req.Arguments),
		Env:    h.cfg.Env,
		Stdout: os.DevNull,
		Stderr: stderrFile,
	})
	if err != nil {
		return persistentworker.WorkResponse{}, err
	}

	return persistentworker.WorkResponse{
		ExitCode:  exitCode,
		Output:    h.readCapture(req.RequestId, stderrFile),
		RequestId: req.RequestId,
	}, nil
}

// CommandLine returns the compiler arguments for a request. arguments is
// copied, never modified. In incremental mode the incremental directory for
// the request's target is appended.
func (h *Handler) CommandLine(arguments []string) []string {
	cmdline := make([]string, len(arguments), len(arguments)+2)
	copy(cmdline, arguments)
	if h.cfg.CompilationMode == "" {
		return cmdline
	}
	dir := h.IncrementalDir(TargetOf(arguments))
	return append(cmdline, incrementalFlag, "incremental="+dir)
}

// IncrementalDir returns the incremental state directory for target under the
// configured compilation mode. An empty target shares the mode's root.
func (h *Handler) IncrementalDir(target string) string {
	return filepath.Join(h.cfg.WorkDir, IncrementalNamespace, target, h.cfg.CompilationMode)
}

// StderrPath returns the capture file for a request.
func (h *Handler) StderrPath(requestID int) string {
	name := fmt.Sprintf("stderr_%d.log", requestID)
	if h.cfg.InstanceID != "" {
		name = fmt.Sprintf("stderr_%s_%d.log", h.cfg.InstanceID, requestID)
	}
	return filepath.Join(h.cfg.WorkDir, name)
}

func (h *Handler) readCapture(requestID int, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		h.logger.Warn("failed to read captured stderr", zap.Int("request_id", requestID), zap.Error(err))
		return StderrUnavailable
	}
	if err := os.Remove(path); err != nil {
		h.logger.Debug("failed to remove stderr capture", zap.String("path", path), zap.Error(err))
	}
	return string(data)
}

// TargetOf returns the value of the first --target= argument, or "".
func TargetOf(arguments []string) string {
	for _, arg := range arguments {
		if target, ok := strings.CutPrefix(arg, TargetPrefix); ok {
			return target
		}
	}
	return ""
}
