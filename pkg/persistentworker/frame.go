package persistentworker

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxFrameSize bounds the payload length accepted from the length prefix so a
// corrupted prefix cannot make the worker allocate arbitrary amounts of memory.
const maxFrameSize = 256 << 20

// maxVarintLen is the longest encoding of a 64-bit varint.
const maxVarintLen = 10

// ErrMalformedFrame is returned when the request stream cannot be split into
// frames or a frame's payload cannot be decoded. The stream cannot be
// resynchronized after this error.
var ErrMalformedFrame = errors.New("malformed frame")

// ReadFrame reads one varint length-delimited frame and returns its payload.
// It returns io.EOF only if the stream ends cleanly before the first byte of
// a frame. A stream that ends anywhere inside a frame yields ErrMalformedFrame.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var prefix [maxVarintLen]byte
	n := 0
	for {
		if n == len(prefix) {
			return nil, fmt.Errorf("%w: length prefix longer than %d bytes", ErrMalformedFrame, maxVarintLen)
		}
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n == 0 {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedFrame)
			}
			return nil, err
		}
		prefix[n] = c
		n++
		if c < 0x80 {
			break
		}
	}

	size, m := protowire.ConsumeVarint(prefix[:n])
	if m < 0 {
		return nil, fmt.Errorf("%w: decoding length prefix: %v", ErrMalformedFrame, protowire.ParseError(m))
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds limit of %d bytes", ErrMalformedFrame, size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated payload, expected %d bytes", ErrMalformedFrame, size)
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload prefixed with its varint length. If w is a
// *bufio.Writer it is flushed so the peer sees the frame immediately.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, maxVarintLen+len(payload))
	buf = protowire.AppendVarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if bw, ok := w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}
