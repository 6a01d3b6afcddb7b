package melsec

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetRuntimeConfigDefaults(t *testing.T) {
	resetRuntimeConfigForTest()
	for _, k := range []string{
		"MELSEC_CONN_IDLE_SECS", "MELSEC_UDP_RECV_ATTEMPTS", "MELSEC_TCP_RETRY_ATTEMPTS",
		"MELSEC_TCP_RETRY_BACKOFF_MS", "MELSEC_DUMP_ON_ERROR", "LOG_MC_PAYLOADS", "MELSEC_LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}

	cfg := GetRuntimeConfig()
	assert.Equal(t, 300*time.Second, cfg.ConnIdleWindow)
	assert.Equal(t, 3, cfg.UDPRecvAttempts)
	assert.Equal(t, 3, cfg.TCPRetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.TCPRetryBackoff)
	assert.False(t, cfg.DumpOnError)
	assert.False(t, cfg.LogPayloads)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestGetRuntimeConfigReadsEnvironmentOnce(t *testing.T) {
	resetRuntimeConfigForTest()
	os.Setenv("MELSEC_UDP_RECV_ATTEMPTS", "9")
	os.Setenv("MELSEC_DUMP_ON_ERROR", "1")
	os.Setenv("MELSEC_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("MELSEC_UDP_RECV_ATTEMPTS")
		os.Unsetenv("MELSEC_DUMP_ON_ERROR")
		os.Unsetenv("MELSEC_LOG_LEVEL")
		resetRuntimeConfigForTest()
	}()

	cfg := GetRuntimeConfig()
	assert.Equal(t, 9, cfg.UDPRecvAttempts)
	assert.True(t, cfg.DumpOnError)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Changing the environment after the first read must not affect the
	// cached value.
	os.Setenv("MELSEC_UDP_RECV_ATTEMPTS", "1")
	cfg2 := GetRuntimeConfig()
	assert.Equal(t, 9, cfg2.UDPRecvAttempts)
}

func TestEnvIntFallsBackOnMalformedValue(t *testing.T) {
	os.Setenv("MELSEC_TEST_ENV_INT", "not-a-number")
	defer os.Unsetenv("MELSEC_TEST_ENV_INT")
	assert.Equal(t, 42, envInt("MELSEC_TEST_ENV_INT", 42))
}
