package melsec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *DeviceCatalog {
	t.Helper()
	cat, err := DefaultDeviceCatalog()
	require.NoError(t, err)
	return cat
}

func TestParseAddressDecimalAndHex(t *testing.T) {
	cat := testCatalog(t)

	dev, addr, err := cat.ParseAddress("D100")
	require.NoError(t, err)
	assert.Equal(t, "D", dev.Symbol)
	assert.Equal(t, uint32(100), addr)

	dev, addr, err = cat.ParseAddress("X1A")
	require.NoError(t, err)
	assert.Equal(t, "X", dev.Symbol)
	assert.Equal(t, uint32(0x1A), addr)
}

func TestParseAddressNoNumericSuffixDefaultsToZero(t *testing.T) {
	cat := testCatalog(t)
	_, addr, err := cat.ParseAddress("D")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), addr)
}

func TestParseAddressRejectsUnknownSymbol(t *testing.T) {
	cat := testCatalog(t)
	_, _, err := cat.ParseAddress("Q100")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestParseAddressRejectsOutOfRange(t *testing.T) {
	cat := testCatalog(t)
	_, _, err := cat.ParseAddress("D16777216") // MaxDeviceAddress + 1
	require.Error(t, err)
}

func TestParseAddressRejectsEmpty(t *testing.T) {
	cat := testCatalog(t)
	_, _, err := cat.ParseAddress("")
	require.Error(t, err)
}

func TestDeviceCategoryRoundTrip(t *testing.T) {
	cat := testCatalog(t)
	dev, ok := cat.DeviceBySymbol("M")
	require.True(t, ok)
	assert.Equal(t, CategoryBit, dev.Category)

	dev, ok = cat.DeviceBySymbol("D")
	require.True(t, ok)
	assert.Equal(t, CategoryWord, dev.Category)
}

func TestParseSeriesHistoricalNamesRejected(t *testing.T) {
	_, err := ParseSeries("QnA")
	require.Error(t, err)
	_, err = ParseSeries("A")
	require.Error(t, err)

	s, err := ParseSeries("Q")
	require.NoError(t, err)
	assert.Equal(t, SeriesQ, s)
}
