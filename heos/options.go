package heos

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

const (
	// DefaultCommandTimeout bounds how long a submitted command waits for
	// its reply before it is abandoned.
	DefaultCommandTimeout = 5 * time.Second

	// DefaultWatchdogInterval is how often the liveness probe runs while
	// connected.
	DefaultWatchdogInterval = 10 * time.Second
)

type Options struct {
	// Host of the device to connect to.
	Host string

	// Port the device listens on. Defaults to protocol.Port.
	Port int

	// CommandTimeout overrides DefaultCommandTimeout.
	CommandTimeout time.Duration

	// WatchdogInterval overrides DefaultWatchdogInterval.
	WatchdogInterval time.Duration

	Log *zap.Logger
}

func (o *Options) withDefaults() Options {
	options := *o

	if options.Port == 0 {
		options.Port = protocol.Port
	}

	if options.CommandTimeout == 0 {
		options.CommandTimeout = DefaultCommandTimeout
	}

	if options.WatchdogInterval == 0 {
		options.WatchdogInterval = DefaultWatchdogInterval
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	return options
}
