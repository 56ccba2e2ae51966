// Package logger provides the process-wide stderr logger.
package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

var logger *log.Logger

// Get returns the shared logger, creating it on first use.
func Get() *log.Logger {
	if logger == nil {
		logger = log.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(log.WarnLevel)
		logger.SetFormatter(&log.TextFormatter{
			DisableTimestamp: true,
		})
	}
	return logger
}

// SetVerbose switches the shared logger between warn and debug level.
func SetVerbose(on bool) {
	l := Get()
	if on {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.WarnLevel)
	}
}
