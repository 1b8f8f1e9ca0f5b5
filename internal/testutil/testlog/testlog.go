package testlog

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/printforge/printctl/internal/logging"
)

func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	logger := zerolog.New(io.Discard)
	logger.Debug().Str("test", t.Name()).Msg("start")
	return logger
}
