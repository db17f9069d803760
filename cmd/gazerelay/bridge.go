package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/bridge"
)

var bridgeOpts struct {
	upstreamPort int
	wsPort       int
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Re-broadcast upstream datagrams to websocket subscribers",
	RunE:  runBridge,
}

func init() {
	bridgeCmd.Flags().IntVar(&bridgeOpts.upstreamPort, "upstream-port", 0, "UDP port for upstream frames and samples")
	bridgeCmd.Flags().IntVar(&bridgeOpts.wsPort, "ws-port", 0, "Websocket port")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("upstream-port") {
		cfg.Bridge.UpstreamPort = bridgeOpts.upstreamPort
	}
	if cmd.Flags().Changed("ws-port") {
		cfg.Bridge.WSPort = bridgeOpts.wsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := bridge.NewServer(bridge.Config{
		Bind:         cfg.Bridge.Bind,
		UpstreamPort: cfg.Bridge.UpstreamPort,
		WSPort:       cfg.Bridge.WSPort,
		QueueSize:    cfg.Bridge.QueueSize,
		ReadTimeout:  cfg.Relay.ReadTimeout,
	}, bridge.WithRegistry(newRegistry()))

	ctx := cmd.Context()
	if err := srv.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("Shutting down")
	return srv.Stop()
}
