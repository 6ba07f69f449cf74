package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"ts3cli/internal/engine"
)

var cfg engine.Config

func Execute() error {
	root := &cobra.Command{
		Use:   "ts3client",
		Short: "A from-scratch TeamSpeak 3 voice protocol client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Host == "" {
				return fmt.Errorf("--host required")
			}
			if cfg.Nickname == "" {
				return fmt.Errorf("--nickname required")
			}
			if (cfg.RelayURL == "") != (cfg.RelayToken == "") {
				return fmt.Errorf("--relay-url and --relay-token must be set together")
			}
			return nil
		},
	}

	cfg.Port = 9987
	root.PersistentFlags().StringVar(&cfg.Host, "host", "", "TS3 server host")
	root.PersistentFlags().Uint16Var(&cfg.Port, "port", cfg.Port, "TS3 server UDP port")
	root.PersistentFlags().StringVar(&cfg.Nickname, "nickname", "", "nickname to join as")
	root.PersistentFlags().StringVar(&cfg.DefaultChannel, "channel", "", "channel to move into on join")
	root.PersistentFlags().StringVar(&cfg.ServerPassword, "password", "", "server password, if required")
	root.PersistentFlags().StringVar(&cfg.HWID, "hwid", "", "hardware id reported at clientinit (default a zero placeholder)")
	root.PersistentFlags().StringVar(&cfg.RelayURL, "relay-url", "", "WebSocket relay base URL, for UDP-blocked networks")
	root.PersistentFlags().StringVar(&cfg.RelayToken, "relay-token", "", "shared token for --relay-url")
	root.PersistentFlags().BoolVar(&cfg.StrictLicense, "strict-license", false, "abort the handshake instead of warning on an unverifiable license chain")

	root.AddCommand(runCmd())
	return root.Execute()
}
