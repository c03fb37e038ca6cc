package persistentworker

import (
	"io"
	"os"

	"go.uber.org/zap"
)

// Option configures a Worker.
type Option func(*Worker)

// WithProtocol sets the wire format.
// If not specified, defaults to ProtocolProto.
func WithProtocol(p Protocol) Option {
	return func(w *Worker) {
		w.protocol = p
	}
}

// WithInput sets the input reader for work requests.
// If not specified, defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(w *Worker) {
		w.input = r
	}
}

// WithOutput sets the output writer for work responses.
// If not specified, defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(worker *Worker) {
		worker.output = w
	}
}

// WithLogger sets the logger used for diagnostics. It must not write to the
// output stream.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// defaultInput returns the default input reader.
func defaultInput() io.Reader {
	return os.Stdin
}

// defaultOutput returns the default output writer.
func defaultOutput() io.Writer {
	return os.Stdout
}
