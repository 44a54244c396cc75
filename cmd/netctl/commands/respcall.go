package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	netpkg "github.com/marmos91/asyncnet/net"
	"github.com/marmos91/asyncnet/net/resp"
	"github.com/marmos91/asyncnet/pkg/config"
)

var respCallTarget string

var respCallCmd = &cobra.Command{
	Use:   "resp-call [args...]",
	Short: "Issue a single RESP command and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return err
		}
		target := respCallTarget
		if target == "" {
			target = cfg.ListenName
		}

		mode := resp.Always
		switch cfg.ReconnectMode {
		case "once":
			mode = resp.Once
		case "never":
			mode = resp.Never
		}

		stack := netpkg.NewTCPNetworkStack()
		client, err := resp.NewClient(stack, netpkg.ParseName(target, "6379"), mode, nil)
		if err != nil {
			return err
		}

		value, err := client.Call(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", value)
		return nil
	},
}

func init() {
	respCallCmd.Flags().StringVar(&respCallTarget, "target", "", "host:port of the RESP server (defaults to the configured listen_name)")
}
