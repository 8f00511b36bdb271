// Command chat runs a chat server or a chat client on a real node.
package main

import (
	"context"
	"dsbuild/chat"
	"dsbuild/chat/client"
	"dsbuild/chat/server"
	"dsbuild/config"
	"dsbuild/internal/cli"
	"dsbuild/process"
	"dsbuild/real"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Replicated chat",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = cli.NewLogger(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server <config>",
	Short: "Run a chat server",
	Long: `Runs a chat server described by a YAML or JSON config:

  host: 127.0.0.1
  port: 10001
  mount_dir: /var/lib/chat/1
  partner: 127.0.0.1:10002`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadChatServer(args[0])
		if err != nil {
			return err
		}
		partner, err := cfg.PartnerAddress()
		if err != nil {
			return err
		}
		var opts []server.Option
		if partner != nil {
			opts = append(opts, server.WithPartner(*partner))
		}

		node := real.NewNode(cfg.Host, cfg.Port, cfg.MountDir, real.WithLogger(logger))
		local, err := real.AddProcess(node, config.ChatServerName, server.New(opts...))
		if err != nil {
			return err
		}
		if partner != nil {
			local.Sender() <- process.MessageFrom(chat.CheckPartner{})
		}

		ctx, stop := cli.SignalContext()
		defer stop()
		logger.Info("chat server started", zap.String("addr", node.Address()), zap.String("partner", cfg.Partner))
		return node.Run(ctx)
	},
}

var clientCmd = &cobra.Command{
	Use:   "client <config>",
	Short: "Run a chat client reading requests from stdin",
	Long: `Runs a chat client described by a YAML or JSON config:

  login: alice
  password: secret
  host: 127.0.0.1
  port: 20001
  servers: ["127.0.0.1:10001", "127.0.0.1:10002"]

Requests are /create <chat>, /connect <chat>, /send '<message>',
/disconnect and /status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadChatClient(args[0])
		if err != nil {
			return err
		}
		servers, err := cfg.ServerAddresses()
		if err != nil {
			return err
		}
		mountDir, err := os.MkdirTemp("", "chat-client-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(mountDir)

		node := real.NewNode(cfg.Host, cfg.Port, mountDir, real.WithLogger(logger))
		local, err := real.AddProcess(node, config.ChatClientName, client.New(cfg.Login, cfg.Password, servers...))
		if err != nil {
			return err
		}

		ctx, stop := cli.SignalContext()
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		node.Spawn(func(ctx context.Context) {
			if err := client.RunIO(ctx, local, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				logger.Error("client io stopped", zap.Error(err))
			}
			cancel()
		})
		return node.Run(ctx)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.AddCommand(serverCmd, clientCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
