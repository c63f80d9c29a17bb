package testutil

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// TestLoggerWithHook returns a logger that discards output and records every
// entry in the returned hook.
func TestLoggerWithHook(t *testing.T) (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(hook.Reset)
	return logger, hook
}
