package persistentworker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshalWorkResponse_OmitsZeroValues(t *testing.T) {
	assert.Empty(t, MarshalWorkResponse(WorkResponse{}))

	b := MarshalWorkResponse(WorkResponse{RequestId: 1})
	assert.Equal(t, []byte{0x18, 0x01}, b)
}

func TestUnmarshalWorkRequest_SkipsUnknownFields(t *testing.T) {
	b := MarshalWorkRequest(WorkRequest{Arguments: []string{"a"}, RequestId: 3})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer schema")
	b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)
	b = append(b, MarshalWorkRequest(WorkRequest{Arguments: []string{"b"}})...)

	req, err := UnmarshalWorkRequest(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, req.Arguments)
	assert.Equal(t, 3, req.RequestId)
}

func TestUnmarshalWorkRequest_TrailingGarbage(t *testing.T) {
	valid := MarshalWorkRequest(WorkRequest{Arguments: []string{"--flag"}, RequestId: 1})

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "string field longer than payload", payload: append(append([]byte(nil), valid...), 0x0a, 0x05, 'a')},
		{name: "field number zero", payload: append(append([]byte(nil), valid...), 0x00)},
		{name: "dangling tag", payload: append(append([]byte(nil), valid...), 0x18)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalWorkRequest(tt.payload)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "expected ErrMalformedFrame, got %v", err)
		})
	}
}

func TestUnmarshalWorkRequest_NegativeRequestID(t *testing.T) {
	req, err := UnmarshalWorkRequest(MarshalWorkRequest(WorkRequest{RequestId: -5}))
	require.NoError(t, err)
	assert.Equal(t, -5, req.RequestId)
}
