package melsec_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/GoAethereal/melsec"
	"github.com/GoAethereal/melsec/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 7 (§8 of the expanded spec): a client round-trips read_words
// and write_words against an in-process mock server.
func TestMockRoundTrip(t *testing.T) {
	require.NoError(t, melsec.InitDefaults())

	store := mock.NewStore()
	srv := mock.NewServer(store.Mux(), melsec.SeriesQ)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	go func() {
		_ = srv.ListenAndServe(addr)
	}()
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := parsePort(t, portStr)

	target := melsec.NewTarget(host, port, melsec.ProtocolTCP, melsec.SeriesQ)
	client := melsec.NewClient(target)
	defer client.Close()

	ctx := context.Background()
	err = client.WriteWords(ctx, "D100", []uint16{0x1234, 0x5678}, 2*time.Second)
	require.NoError(t, err)

	words, err := client.ReadWords(ctx, "D100", 2, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678}, words)
}

func TestMockRoundTripEcho(t *testing.T) {
	require.NoError(t, melsec.InitDefaults())

	store := mock.NewStore()
	srv := mock.NewServer(store.Mux(), melsec.SeriesQ)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	go func() {
		_ = srv.ListenAndServe(addr)
	}()
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := parsePort(t, portStr)

	target := melsec.NewTarget(host, port, melsec.ProtocolTCP, melsec.SeriesQ)
	client := melsec.NewClient(target)
	defer client.Close()

	out, err := client.Echo(context.Background(), []byte("DEAD1234"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("DEAD1234"), out)
}

func parsePort(t *testing.T, s string) uint16 {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return uint16(n)
}
