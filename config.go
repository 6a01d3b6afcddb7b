package melsec

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// RuntimeConfig holds the handful of environment-driven knobs the transport
// layer reads once and treats as immutable for the remainder of the
// process, per the concurrency model's "read once from the environment at
// first access" rule.
type RuntimeConfig struct {
	// ConnIdleWindow bounds how long a pooled TCP connection may sit idle
	// before the pool discards it instead of reusing it.
	ConnIdleWindow time.Duration
	// UDPRecvAttempts bounds how many datagrams the UDP transport reads
	// for one request before giving up; the request itself is sent once.
	UDPRecvAttempts int
	// TCPRetryAttempts bounds how many times the client facade retries a
	// whole TCP send-receive sequence.
	TCPRetryAttempts int
	// TCPRetryBackoff is the base backoff duration; successive attempts
	// wait base*2^(attempt-1).
	TCPRetryBackoff time.Duration
	// DumpOnError enables structured warning-level logging of stream
	// resynchronization events (dropped bytes, mis-serialed frames).
	DumpOnError bool
	// LogPayloads enables debug-level hex dumps of outgoing and incoming
	// frame bytes.
	LogPayloads bool
	// LogLevel is one of "debug"/"info"/"warn"/"error".
	LogLevel string
}

var (
	runtimeConfigOnce sync.Once
	runtimeConfig     RuntimeConfig
)

// GetRuntimeConfig returns the process-wide RuntimeConfig, populating it
// from the environment on first call. Subsequent calls return the cached
// value even if the environment changes underneath the process.
func GetRuntimeConfig() RuntimeConfig {
	runtimeConfigOnce.Do(func() {
		runtimeConfig = RuntimeConfig{
			ConnIdleWindow:   time.Duration(envInt("MELSEC_CONN_IDLE_SECS", 300)) * time.Second,
			UDPRecvAttempts:  envInt("MELSEC_UDP_RECV_ATTEMPTS", 3),
			TCPRetryAttempts: envInt("MELSEC_TCP_RETRY_ATTEMPTS", 3),
			TCPRetryBackoff:  time.Duration(envInt("MELSEC_TCP_RETRY_BACKOFF_MS", 100)) * time.Millisecond,
			DumpOnError:      envBool("MELSEC_DUMP_ON_ERROR"),
			LogPayloads:      envBool("LOG_MC_PAYLOADS"),
			LogLevel:         envString("MELSEC_LOG_LEVEL", "info"),
		}
	})
	return runtimeConfig
}

// resetRuntimeConfigForTest allows package tests to force a fresh read of
// the environment; it must never be called from production code.
func resetRuntimeConfigForTest() {
	runtimeConfigOnce = sync.Once{}
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string) bool {
	return os.Getenv(key) == "1"
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
