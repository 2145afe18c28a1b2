package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameHeaderRoundTrip(t *testing.T) {
	frame := encodeFrameHeader(SASLFrameType, 0, []byte("body"))
	size, bodyOff, frameType, channel, ok := DecodeFrameHeader(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(len(frame)), size)
	assert.Equal(t, 8, bodyOff)
	assert.Equal(t, SASLFrameType, frameType)
	assert.Equal(t, uint16(0), channel)
	assert.Equal(t, "body", string(frame[bodyOff:size]))
}

func TestDecodeFrameHeaderIncomplete(t *testing.T) {
	_, _, _, _, ok := DecodeFrameHeader([]byte{0, 0, 0, 8, 2})
	assert.False(t, ok)
}

func TestEncodeDecodeValuePrimitives(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		uint8(42),
		Symbol("ANONYMOUS"),
		Binary([]byte{1, 2, 3}),
		"a string",
	}
	for _, in := range cases {
		buf := encodeValue(nil, in)
		out, n, err := DecodeValue(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, in, out)
	}
}

func TestEncodeDecodeSymbolArray(t *testing.T) {
	syms := []Symbol{"PLAIN", "ANONYMOUS", "SCRAM-SHA-256"}
	buf := encodeValue(nil, syms)
	out, n, err := DecodeValue(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, syms, out)
}

func TestEncodeDecodeList(t *testing.T) {
	items := []any{Symbol("PLAIN"), Binary([]byte("resp"))}
	buf := encodeList(nil, items)
	out, n, err := DecodeValue(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, items, out)
}

func TestEncodeDecodeEmptyList(t *testing.T) {
	buf := encodeList(nil, nil)
	out, n, err := DecodeValue(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []any{}, out)
}

func TestEncodeDecodeDescribedList(t *testing.T) {
	buf := encodeDescribedList(DescrSASLMechanisms, []Symbol{"ANONYMOUS"})
	out, n, err := DecodeValue(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	dv, ok := out.(DescribedValue)
	require.True(t, ok)
	assert.Equal(t, DescrSASLMechanisms, dv.Descriptor)
	fields, ok := dv.Value.([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, []Symbol{"ANONYMOUS"}, fields[0])
}

func TestDecodeValueShortBuffer(t *testing.T) {
	_, _, err := DecodeValue(nil)
	assert.ErrorIs(t, err, ErrShortFrame)

	_, _, err = DecodeValue([]byte{ctorStr8, 10, 'a'})
	assert.ErrorIs(t, err, ErrShortFrame)
}
