package persistentworker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Protocol selects the wire format spoken with Bazel.
type Protocol string

const (
	// ProtocolProto is the default varint-delimited protobuf protocol.
	ProtocolProto Protocol = "proto"
	// ProtocolJSON is Bazel's JSON worker protocol
	// (requires-worker-protocol: json).
	ProtocolJSON Protocol = "json"
)

// ParseProtocol validates a protocol name given on the command line.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolProto, ProtocolJSON:
		return Protocol(s), nil
	}
	return "", fmt.Errorf("unsupported worker protocol %q (must be %s or %s)", s, ProtocolProto, ProtocolJSON)
}

// codec reads requests from and writes responses to the worker's streams.
type codec interface {
	// readRequest returns io.EOF if the stream ended cleanly between messages.
	readRequest() (WorkRequest, error)
	// writeResponse writes one response and flushes it to the peer.
	writeResponse(WorkResponse) error
}

func newCodec(protocol Protocol, r io.Reader, w io.Writer) (codec, error) {
	switch protocol {
	case ProtocolProto:
		return &protoCodec{reader: bufio.NewReader(r), writer: bufio.NewWriter(w)}, nil
	case ProtocolJSON:
		bw := bufio.NewWriter(w)
		return &jsonCodec{
			decoder: json.NewDecoder(bufio.NewReader(r)),
			encoder: json.NewEncoder(bw),
			writer:  bw,
		}, nil
	}
	return nil, fmt.Errorf("unsupported worker protocol %q", protocol)
}

type protoCodec struct {
	reader *bufio.Reader
	writer *bufio.Writer
}

func (c *protoCodec) readRequest() (WorkRequest, error) {
	payload, err := ReadFrame(c.reader)
	if err != nil {
		return WorkRequest{}, err
	}
	return UnmarshalWorkRequest(payload)
}

func (c *protoCodec) writeResponse(resp WorkResponse) error {
	return WriteFrame(c.writer, MarshalWorkResponse(resp))
}

type jsonCodec struct {
	decoder *json.Decoder
	encoder *json.Encoder
	writer  *bufio.Writer
}

func (c *jsonCodec) readRequest() (WorkRequest, error) {
	var req WorkRequest
	if err := c.decoder.Decode(&req); err != nil {
		if err == io.EOF {
			return WorkRequest{}, io.EOF
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return WorkRequest{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return WorkRequest{}, err
	}
	return req, nil
}

func (c *jsonCodec) writeResponse(resp WorkResponse) error {
	if err := c.encoder.Encode(resp); err != nil {
		return err
	}
	return c.writer.Flush()
}
