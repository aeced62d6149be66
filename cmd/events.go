package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/maestro/heos"
)

var EventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Connect to a device and print its change events",
	Long: `Connect to a device and print its change events

Each event is printed as one JSON document per line until interrupted.

Usage
	maestro events --host 10.0.1.12

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		c, log, err := makeClient(ctx)
		if err != nil {
			return err
		}

		unsubscribe := c.On(heos.AnyEvent, func(event string, message map[string]string) {
			line, jerr := eventLine(event, message)
			if jerr != nil {
				log.Warn("Failed to encode event", zap.Error(jerr))
				return
			}

			fmt.Println(line)
		})
		defer unsubscribe()

		if err := c.Connect(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return c.Close()
	},
}

func eventLine(event string, message map[string]string) (string, error) {
	line, err := sjson.Set(`{}`, "event", event)
	if err != nil {
		return "", err
	}

	for key, value := range message {
		if line, err = sjson.Set(line, "message."+key, value); err != nil {
			return "", err
		}
	}

	return line, nil
}
