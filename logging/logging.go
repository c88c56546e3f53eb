package logging

import (
	"fmt"
	"os"

	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the service logger. Structured JSON in deployed
// environments, colored console output for local runs.
func NewLogger() (*zap.SugaredLogger, error) {
	config := zapdriver.NewProductionConfig()

	if os.Getenv("LOG_FORMAT") == "console" {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("zap.Build() failed: %v", err)
	}

	return logger.Sugar(), nil
}

// NewNopLogger keeps test output quiet.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
