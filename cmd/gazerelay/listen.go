package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gaze/internal/udpx"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

var listenOpts struct {
	relay     string
	heartbeat time.Duration
	count     int
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Register with a relay and print the frames it sends",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenOpts.relay, "relay", "127.0.0.1:12344", "Relay registration address")
	listenCmd.Flags().DurationVar(&listenOpts.heartbeat, "heartbeat", 5*time.Second, "Re-register interval, for relays with a client TTL")
	listenCmd.Flags().IntVarP(&listenOpts.count, "count", "n", 0, "Stop after n frames (0 runs until interrupted)")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	relayAddr, err := net.ResolveUDPAddr("udp", listenOpts.relay)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", listenOpts.relay, err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	register := func() {
		_, _ = conn.WriteToUDP([]byte("register"), relayAddr)
	}
	register()
	go func() {
		ticker := time.NewTicker(listenOpts.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				register()
			}
		}
	}()

	out := cmd.OutOrStdout()
	received := 0
	return udpx.ReadLoop(ctx, conn, 64*1024, time.Second, func(data []byte, _ netip.AddrPort) {
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			return
		}
		fmt.Fprintf(out, "%.3f #%d gaze=(%.1f, %.1f) fixation=(%.1f, %.1f)\n",
			frame.Timestamp, frame.Num, frame.Gaze.X, frame.Gaze.Y, frame.Fixation.X, frame.Fixation.Y)
		received++
		if listenOpts.count > 0 && received >= listenOpts.count {
			cancel()
		}
	}, nil)
}
