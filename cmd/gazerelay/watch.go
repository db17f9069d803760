package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gaze/internal/log"
)

var watchOpts struct {
	addr  string
	count int
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print frames from a relay or bridge websocket feed",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOpts.addr, "addr", "ws://127.0.0.1:8765/ws/gaze", "Websocket URL")
	watchCmd.Flags().IntVarP(&watchOpts.count, "count", "n", 0, "Stop after n messages (0 runs until interrupted)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	target := watchOpts.addr
	if !strings.Contains(target, "://") {
		target = "ws://" + target
	}
	if _, err := url.Parse(target); err != nil {
		return fmt.Errorf("invalid address %q: %w", target, err)
	}

	ctx := cmd.Context()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on interrupt
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Debug("Watching", "addr", target)
	out := cmd.OutOrStdout()
	for n := 0; watchOpts.count == 0 || n < watchOpts.count; n++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}
