package env

import (
	zap "go.uber.org/zap"
)

// MakeLogger builds the process logger. With debug enabled it traces
// verbosely to standard error; disabled it is silent.
func MakeLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

	return logConfig.Build()
}
