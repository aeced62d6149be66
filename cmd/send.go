package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luma/maestro/protocol"
)

var SendCmd = &cobra.Command{
	Use:   "send <command> [param=value ...]",
	Short: "Send a single command to a device and print the reply",
	Long: `Send a single command to a device and print the reply

Usage
	maestro send player/get_volume pid=1 --host 10.0.1.12

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		params := make(map[string]string, len(args)-1)
		for _, arg := range args[1:] {
			i := strings.IndexByte(arg, '=')
			if i < 0 {
				return fmt.Errorf("parameter %q is not of the form key=value", arg)
			}
			params[arg[:i]] = arg[i+1:]
		}

		c, _, err := makeClient(ctx)
		if err != nil {
			return err
		}

		if err := c.Connect(ctx); err != nil {
			return err
		}
		defer c.Close()

		env, err := c.Submit(ctx, protocol.Command(args[0]), params)
		if err != nil {
			return err
		}

		for key, value := range env.Message {
			fmt.Printf("%s=%s\n", key, value)
		}

		if env.Payload != nil {
			fmt.Println(string(env.Payload))
		}

		return nil
	},
}
