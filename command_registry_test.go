package melsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldSpecVariants(t *testing.T) {
	cases := []struct {
		in   string
		kind FieldKind
		n    int
		le   bool
	}{
		{"start_addr:3le", KindFixedBytes, 3, true},
		{"device_code:1", KindFixedBytes, 1, true},
		{"count:2be", KindFixedBytes, 2, false},
		{"data:words_le", KindWords, 0, true},
		{"data:words_be", KindWords, 0, false},
		{"payload:ascii_hex", KindAsciiHex, 0, false},
		{"data:bytes", KindBytes, 0, false},
		{"data:rest", KindBytes, 0, false},
	}
	for _, c := range cases {
		fs, err := parseFieldSpec(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.kind, fs.Kind, c.in)
		if c.kind == KindFixedBytes {
			assert.Equal(t, c.n, fs.N, c.in)
			assert.Equal(t, c.le, fs.LE, c.in)
		}
	}
}

func TestParseFieldSpecRejectsMalformed(t *testing.T) {
	_, err := parseFieldSpec("nocolon")
	require.Error(t, err)
	_, err = parseFieldSpec("name:")
	require.Error(t, err)
	_, err = parseFieldSpec("name:notanumber")
	require.Error(t, err)
}

func TestParseResponseEntryVariants(t *testing.T) {
	re, err := parseResponseEntry("data_blocks:blocks_words_le")
	require.NoError(t, err)
	assert.Equal(t, DirectiveBlockWords, re.Directive)
	assert.True(t, re.LE)

	re, err = parseResponseEntry("data_blocks:blocks_bits_packed")
	require.NoError(t, err)
	assert.Equal(t, DirectiveBlockBitsPacked, re.Directive)
	assert.True(t, re.LSBFirst)

	re, err = parseResponseEntry("data_blocks:blocks_nibbles:high")
	require.NoError(t, err)
	assert.Equal(t, DirectiveBlockNibbles, re.Directive)
	assert.True(t, re.HighFirst)

	re, err = parseResponseEntry("payload:ascii_hex")
	require.NoError(t, err)
	assert.Equal(t, DirectiveAsciiHex, re.Directive)
}

func TestDefaultCommandRegistryParsesAllCommands(t *testing.T) {
	reg, err := DefaultCommandRegistry()
	require.NoError(t, err)
	for id := CmdReadWords; id <= CmdWriteBlocks; id++ {
		_, ok := reg.Get(id)
		assert.True(t, ok, id.String())
	}
}

func TestCommandRegistryFindByCodeAndSub(t *testing.T) {
	reg, err := DefaultCommandRegistry()
	require.NoError(t, err)
	spec, ok := reg.FindByCodeAndSub(0x0401, 0x0000, SeriesQ)
	require.True(t, ok)
	assert.Equal(t, CmdReadWords, spec.ID)

	_, ok = reg.FindByCodeAndSub(0xFFFF, 0xFFFF, SeriesQ)
	assert.False(t, ok)
}

func TestDeviceFamilyAccepts(t *testing.T) {
	assert.True(t, FamilyAny.Accepts(CategoryBit))
	assert.True(t, FamilyBit.Accepts(CategoryBit))
	assert.False(t, FamilyBit.Accepts(CategoryWord))
	assert.True(t, FamilyWord.Accepts(CategoryWord))
	assert.False(t, FamilyWord.Accepts(CategoryBit))
}
