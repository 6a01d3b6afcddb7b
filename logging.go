package melsec

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the package-wide structured logger, configured from
// RuntimeConfig.LogLevel on first use (§10.5 of the expanded spec).
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "melsec",
			ReportTimestamp: true,
		})
		lvl, err := log.ParseLevel(GetRuntimeConfig().LogLevel)
		if err != nil {
			lvl = log.InfoLevel
		}
		logger.SetLevel(lvl)
	})
	return logger
}

func resetLoggerForTest() {
	loggerOnce = sync.Once{}
}
