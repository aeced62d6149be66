package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/maestro/cmd/gen"
	"github.com/luma/maestro/heos"
	"github.com/luma/maestro/internal/env"
)

var (
	// The device host to connect to
	host string

	// Enables verbose diagnostic logging
	debug bool
)

var RootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Control HEOS-compatible audio devices from the command line",
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&host, "host", "a", "", "The device host to connect to")
	flags.BoolVar(&debug, "debug", false, "Enable verbose diagnostic logging")

	RootCmd.AddCommand(EventsCmd, SendCmd, ServeCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// makeClient resolves configuration from flags and the environment and
// builds the device client plus the process logger.
func makeClient(ctx context.Context) (*heos.Conn, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	log, err := env.MakeLogger(debug || conf.Debug)
	if err != nil {
		return nil, nil, err
	}

	deviceHost := host
	if deviceHost == "" {
		deviceHost = conf.Host
	}
	if deviceHost == "" {
		return nil, nil, errors.New("no device host given, use --host or MAESTRO_HOST")
	}

	return heos.New(heos.Options{Host: deviceHost, Log: log}), log, nil
}
