package melsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWordsToWordsRoundTrip(t *testing.T) {
	var u16 uint16
	require.NoError(t, FromWords([]uint16{0x1234}, &u16))
	assert.Equal(t, uint16(0x1234), u16)
	words, err := ToWords(u16)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234}, words)

	var i16 int16
	require.NoError(t, FromWords([]uint16{0xFFFF}, &i16))
	assert.Equal(t, int16(-1), i16)
	words, err = ToWords(i16)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xFFFF}, words)

	var bits [16]bool
	require.NoError(t, FromWords([]uint16{0x0005}, &bits))
	assert.True(t, bits[0])
	assert.False(t, bits[1])
	assert.True(t, bits[2])
	words, err = ToWords(bits)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0005}, words)

	var u32 uint32
	require.NoError(t, FromWords([]uint16{0x5678, 0x1234}, &u32))
	assert.Equal(t, uint32(0x12345678), u32)
	words, err = ToWords(u32)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x5678, 0x1234}, words)

	var i32 int32
	require.NoError(t, FromWords([]uint16{0xFFFF, 0xFFFF}, &i32))
	assert.Equal(t, int32(-1), i32)
	words, err = ToWords(i32)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xFFFF, 0xFFFF}, words)

	var f32 float32
	in, err := ToWords(float32(3.5))
	require.NoError(t, err)
	require.NoError(t, FromWords(in, &f32))
	assert.Equal(t, float32(3.5), f32)
}

func TestFromWordsRejectsShortInput(t *testing.T) {
	var u32 uint32
	err := FromWords([]uint16{0x0001}, &u32)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestFromWordsRejectsUnsupportedType(t *testing.T) {
	var s string
	err := FromWords([]uint16{0x0001}, &s)
	require.Error(t, err)
}

func TestToWordsRejectsUnsupportedType(t *testing.T) {
	_, err := ToWords("nope")
	require.Error(t, err)
}
