package persistentworker

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the blaze.worker protobuf schema.
const (
	requestArgumentsField  protowire.Number = 1
	requestInputsField     protowire.Number = 2
	requestIDField         protowire.Number = 3
	requestCancelField     protowire.Number = 4
	requestVerbosityField  protowire.Number = 5
	requestSandboxDirField protowire.Number = 6

	inputPathField   protowire.Number = 1
	inputDigestField protowire.Number = 2

	responseExitCodeField     protowire.Number = 1
	responseOutputField       protowire.Number = 2
	responseIDField           protowire.Number = 3
	responseWasCancelledField protowire.Number = 4
)

// MarshalWorkRequest encodes req in protobuf wire format. Zero values are
// omitted, as proto3 does.
func MarshalWorkRequest(req WorkRequest) []byte {
	var b []byte
	for _, arg := range req.Arguments {
		b = protowire.AppendTag(b, requestArgumentsField, protowire.BytesType)
		b = protowire.AppendString(b, arg)
	}
	for _, input := range req.Inputs {
		b = protowire.AppendTag(b, requestInputsField, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalInput(input))
	}
	b = appendInt32(b, requestIDField, req.RequestId)
	if req.Cancel {
		b = protowire.AppendTag(b, requestCancelField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = appendInt32(b, requestVerbosityField, req.Verbosity)
	if req.SandboxDir != "" {
		b = protowire.AppendTag(b, requestSandboxDirField, protowire.BytesType)
		b = protowire.AppendString(b, req.SandboxDir)
	}
	return b
}

func marshalInput(input Input) []byte {
	var b []byte
	if input.Path != "" {
		b = protowire.AppendTag(b, inputPathField, protowire.BytesType)
		b = protowire.AppendString(b, input.Path)
	}
	if len(input.Digest) > 0 {
		b = protowire.AppendTag(b, inputDigestField, protowire.BytesType)
		b = protowire.AppendBytes(b, input.Digest)
	}
	return b
}

// MarshalWorkResponse encodes resp in protobuf wire format.
func MarshalWorkResponse(resp WorkResponse) []byte {
	var b []byte
	b = appendInt32(b, responseExitCodeField, resp.ExitCode)
	if resp.Output != "" {
		b = protowire.AppendTag(b, responseOutputField, protowire.BytesType)
		b = protowire.AppendString(b, resp.Output)
	}
	b = appendInt32(b, responseIDField, resp.RequestId)
	if resp.WasCancelled {
		b = protowire.AppendTag(b, responseWasCancelledField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// appendInt32 appends an int32 field unless v is zero. Negative values are
// sign extended to ten bytes, matching protobuf's int32 encoding.
func appendInt32(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(int32(v))))
}

// UnmarshalWorkRequest decodes a protobuf encoded WorkRequest. The whole of b
// must be consumed; unknown fields are skipped.
func UnmarshalWorkRequest(b []byte) (WorkRequest, error) {
	var req WorkRequest
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == requestArgumentsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, nil
			}
			req.Arguments = append(req.Arguments, v)
			return n, nil
		case num == requestInputsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			input, err := unmarshalInput(v)
			if err != nil {
				return 0, err
			}
			req.Inputs = append(req.Inputs, input)
			return n, nil
		case num == requestIDField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.RequestId = int(int32(v))
			return n, nil
		case num == requestCancelField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.Cancel = protowire.DecodeBool(v)
			return n, nil
		case num == requestVerbosityField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.Verbosity = int(int32(v))
			return n, nil
		case num == requestSandboxDirField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			req.SandboxDir = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return WorkRequest{}, fmt.Errorf("decoding work request: %w", err)
	}
	return req, nil
}

func unmarshalInput(b []byte) (Input, error) {
	var input Input
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == inputPathField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			input.Path = v
			return n, nil
		case num == inputDigestField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				input.Digest = append([]byte(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Input{}, fmt.Errorf("decoding input: %w", err)
	}
	return input, nil
}

// UnmarshalWorkResponse decodes a protobuf encoded WorkResponse.
func UnmarshalWorkResponse(b []byte) (WorkResponse, error) {
	var resp WorkResponse
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == responseExitCodeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.ExitCode = int(int32(v))
			return n, nil
		case num == responseOutputField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			resp.Output = v
			return n, nil
		case num == responseIDField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.RequestId = int(int32(v))
			return n, nil
		case num == responseWasCancelledField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.WasCancelled = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return WorkResponse{}, fmt.Errorf("decoding work response: %w", err)
	}
	return resp, nil
}

// walkFields calls fn for every field in b. fn consumes the field value and
// returns the number of bytes consumed, or a negative protowire error code.
// Parsing stops with ErrMalformedFrame if any field cannot be consumed, so a
// successful walk always covers b exactly.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
