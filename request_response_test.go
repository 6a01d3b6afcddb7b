package melsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) (*CommandRegistry, *DeviceCatalog) {
	t.Helper()
	cmds, err := DefaultCommandRegistry()
	require.NoError(t, err)
	devs, err := DefaultDeviceCatalog()
	require.NoError(t, err)
	return cmds, devs
}

// Scenario 1 (§8): reading one word off a bit-category device (M0)
// synthesizes a 16-element LSB-first bit_blocks array from the returned
// word.
func TestReadWordsOnBitDeviceSynthesizesBitBlocks(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadWords)
	require.True(t, ok)
	dev, _, err := devs.ParseAddress("M0")
	require.NoError(t, err)

	body := []byte{0x34, 0x12} // word 0x1234 little-endian
	parsed, err := ParseResponse(spec, body, []int{1}, []Device{dev})
	require.NoError(t, err)

	require.Len(t, parsed.Words["data_blocks"], 1)
	assert.Equal(t, uint16(0x1234), parsed.Words["data_blocks"][0])
	require.Len(t, parsed.Bits["bit_blocks"], 16)
	// 0x1234 = 0b0001_0010_0011_0100; bit 2 and bit 4 and bit 5 and bit 9 and bit 12 set (LSB-first).
	assert.True(t, parsed.Bits["bit_blocks"][2])
	assert.False(t, parsed.Bits["bit_blocks"][0])
}

// Scenario 3 (§8): reading 11 bit points returns a nibble-packed response
// where each nibble's truthiness becomes one boolean.
func TestReadBitsNibbleResponseAlternates(t *testing.T) {
	cmds, _ := testRegistry(t)
	spec, ok := cmds.Get(CmdReadBits)
	require.True(t, ok)

	body := make([]byte, 6)
	for i := range body {
		body[i] = 0x10
	}
	parsed, err := ParseResponse(spec, body, []int{11}, nil)
	require.NoError(t, err)

	bits := parsed.Bits["data_blocks"]
	require.Len(t, bits, 11)
	for i, b := range bits {
		assert.Equal(t, i%2 == 0, b, "index %d", i)
	}
}

func TestBuildRequestReadWords(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadWords)
	require.True(t, ok)
	dev, addr, err := devs.ParseAddress("D100")
	require.NoError(t, err)

	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Device: dev, Addr: addr, Count: 2})
	require.NoError(t, err)

	// command(2le) + subcommand(2le) + start_addr(3le) + device_code(1) + count(2le) = 10 bytes
	require.Len(t, body, 10)
	assert.Equal(t, byte(0x01), body[0])
	assert.Equal(t, byte(0x04), body[1])
	assert.Equal(t, byte(100), body[4]) // start_addr LE
	assert.Equal(t, dev.Code, uint16(body[7]))
	assert.Equal(t, byte(2), body[8]) // count LE
}

func TestBuildRequestRejectsDeviceFamilyMismatch(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadBits)
	require.True(t, ok)
	dev, addr, err := devs.ParseAddress("D100")
	require.NoError(t, err)

	_, err = BuildRequest(spec, RequestParams{Series: SeriesQ, Device: dev, Addr: addr, Count: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestBuildRequestRejectsPointLimitOverrun(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadWords)
	require.True(t, ok)
	dev, addr, err := devs.ParseAddress("D0")
	require.NoError(t, err)

	_, err = BuildRequest(spec, RequestParams{Series: SeriesQ, Device: dev, Addr: addr, Count: 9999})
	require.Error(t, err)
}

func TestBuildRequestEchoRejectsOutOfRangeLength(t *testing.T) {
	cmds, _ := testRegistry(t)
	spec, ok := cmds.Get(CmdEcho)
	require.True(t, ok)

	_, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Payload: nil})
	require.Error(t, err)

	big := make([]byte, 961)
	for i := range big {
		big[i] = '0'
	}
	_, err = BuildRequest(spec, RequestParams{Series: SeriesQ, Payload: big})
	require.Error(t, err)

	ok2 := make([]byte, 10)
	for i := range ok2 {
		ok2[i] = '0'
	}
	_, err = BuildRequest(spec, RequestParams{Series: SeriesQ, Payload: ok2})
	require.NoError(t, err)
}

func TestBuildRequestSeriesDependentWidths(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadWords)
	require.True(t, ok)
	dev, addr, err := devs.ParseAddress("D100")
	require.NoError(t, err)

	bodyQ, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Device: dev, Addr: addr, Count: 1})
	require.NoError(t, err)
	bodyR, err := BuildRequest(spec, RequestParams{Series: SeriesR, Device: dev, Addr: addr, Count: 1})
	require.NoError(t, err)

	// R widens start_addr to 4 bytes and device_code to 2 bytes.
	assert.Equal(t, len(bodyQ)+2, len(bodyR))
}

func TestBuildRequestReadRandomWordsGroupsBlocksByFamily(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadRandomWords)
	require.True(t, ok)

	d100, addr100, err := devs.ParseAddress("D100")
	require.NoError(t, err)
	d200, addr200, err := devs.ParseAddress("D200")
	require.NoError(t, err)

	blocks := []BlockAddress{
		{Device: d100, Addr: addr100},
		{Device: d200, Addr: addr200},
	}
	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Blocks: blocks})
	require.NoError(t, err)

	// command(2) + subcommand(2) + word_block_count(1) + dword_block_count(1)
	// + 2 word blocks * (device_code(1) + start_addr(3)); no dword blocks.
	require.Len(t, body, 6+2*4)
	assert.Equal(t, byte(2), body[4]) // word_block_count
	assert.Equal(t, byte(0), body[5]) // dword_block_count
}

func TestBuildRequestWriteRandomWordsEncodesPerBlockData(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdWriteRandomWords)
	require.True(t, ok)

	d100, addr100, err := devs.ParseAddress("D100")
	require.NoError(t, err)

	blocks := []BlockAddress{{Device: d100, Addr: addr100, Words: []uint16{0xBEEF}}}
	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Blocks: blocks})
	require.NoError(t, err)

	// header(6) + one word block: device_code(1) + start_addr(3) + data(2)
	require.Len(t, body, 6+6)
	assert.Equal(t, byte(0xEF), body[len(body)-2])
	assert.Equal(t, byte(0xBE), body[len(body)-1])
}

func TestBuildRequestWriteRandomBitsEncodesValueByte(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdWriteRandomBits)
	require.True(t, ok)

	m0, addr0, err := devs.ParseAddress("M0")
	require.NoError(t, err)

	blocks := []BlockAddress{{Device: m0, Addr: addr0, Bits: []bool{true}}}
	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Blocks: blocks})
	require.NoError(t, err)

	// header(5) + one bit block: device_code(1) + start_addr(3) + value(1)
	require.Len(t, body, 5+5)
	assert.Equal(t, byte(1), body[len(body)-1])
}

func TestBuildRequestReadBlocksMixesWordAndBitBlocks(t *testing.T) {
	cmds, devs := testRegistry(t)
	spec, ok := cmds.Get(CmdReadBlocks)
	require.True(t, ok)

	d100, addrD, err := devs.ParseAddress("D100")
	require.NoError(t, err)
	m0, addrM, err := devs.ParseAddress("M0")
	require.NoError(t, err)

	blocks := []BlockAddress{
		{Device: d100, Addr: addrD, Count: 2},
		{Device: m0, Addr: addrM, Count: 3},
	}
	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Blocks: blocks})
	require.NoError(t, err)

	// header(6) + word block(start_addr3+device_code1+count2=6) + bit block(6)
	require.Len(t, body, 6+6+6)
	assert.Equal(t, byte(1), body[4]) // word_block_count
	assert.Equal(t, byte(1), body[5]) // bit_block_count
}

func TestEchoResponseRoundTrip(t *testing.T) {
	cmds, _ := testRegistry(t)
	spec, ok := cmds.Get(CmdEcho)
	require.True(t, ok)

	payload := []byte("ABCD")
	body, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Payload: payload})
	require.NoError(t, err)

	// The payload field is a hex-digit string passed through unchanged, so
	// the response body is exactly the same bytes the request carried.
	parsed, err := ParseResponse(spec, body[len(body)-len(payload):], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, parsed.Raw["payload"])
}

func TestBuildRequestEchoRejectsNonHexDigitPayload(t *testing.T) {
	cmds, _ := testRegistry(t)
	spec, ok := cmds.Get(CmdEcho)
	require.True(t, ok)

	_, err := BuildRequest(spec, RequestParams{Series: SeriesQ, Payload: []byte("hello")})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestParseResponseEchoRejectsNonHexDigitPayload(t *testing.T) {
	cmds, _ := testRegistry(t)
	spec, ok := cmds.Get(CmdEcho)
	require.True(t, ok)

	_, err := ParseResponse(spec, []byte("oops"), nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}
