package persistentworker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ErrInputClosed is returned by Run when the request stream ends. Bazel
// closes the stream to shut the worker down, but from the worker's point of
// view there is no successful way out of the loop.
var ErrInputClosed = errors.New("work request stream closed")

// Worker is a persistent worker that handles Bazel work requests.
//
// Requests are processed strictly one at a time: a request is read, handled
// to completion and answered before the next one is read. Responses are
// therefore written in request order. The worker must not be declared as
// multiplex to Bazel.
type Worker struct {
	handler  Handler
	protocol Protocol
	input    io.Reader
	output   io.Writer
	logger   *zap.Logger
}

// NewWorker creates a new persistent worker with the given handler and options.
func NewWorker(handler Handler, opts ...Option) *Worker {
	w := &Worker{
		handler:  handler,
		protocol: ProtocolProto,
		input:    defaultInput(),
		output:   defaultOutput(),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run reads work requests from input and writes responses to output until
// something ends the loop. It never returns nil: a closed input yields
// ErrInputClosed, a corrupt stream yields an error wrapping
// ErrMalformedFrame, and handler or write failures are returned wrapped.
func (w *Worker) Run(ctx context.Context) error {
	c, err := newCodec(w.protocol, w.input, w.output)
	if err != nil {
		return err
	}

	for {
		req, err := c.readRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrInputClosed
			}
			return fmt.Errorf("failed to read work request: %w", err)
		}

		if req.Cancel {
			// The request being cancelled was answered before this message
			// could be read.
			w.logger.Debug("ignoring cancel request for completed work", zap.Int("request_id", req.RequestId))
			continue
		}

		if req.Verbosity > 1 {
			w.logger.Info("received work request",
				zap.Int("request_id", req.RequestId),
				zap.Strings("arguments", req.Arguments),
				zap.Int("inputs", len(req.Inputs)),
				zap.String("sandbox_dir", req.SandboxDir),
			)
		}

		resp, err := w.handler.HandleRequest(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to handle work request %d: %w", req.RequestId, err)
		}
		resp.RequestId = req.RequestId

		if req.Verbosity > 1 {
			w.logger.Info("sending work response",
				zap.Int("request_id", resp.RequestId),
				zap.Int("exit_code", resp.ExitCode),
				zap.Int("output_bytes", len(resp.Output)),
			)
		}

		if err := c.writeResponse(resp); err != nil {
			return fmt.Errorf("failed to write work response %d: %w", resp.RequestId, err)
		}
	}
}
