package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gaze/internal/httpc"
	"github.com/teslashibe/go-gaze/pkg/web"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status web.Status
		url := strings.TrimRight(statusAddr, "/") + "/api/status"
		if err := httpc.GetJSON(cmd.Context(), url, &status); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://127.0.0.1:8765", "Relay HTTP address")
	rootCmd.AddCommand(statusCmd)
}

func printStatus(out io.Writer, s web.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "SESSION\t%s\n", s.Session)
	fmt.Fprintf(w, "UPTIME\t%s\n", s.Uptime)
	fmt.Fprintf(w, "MODE\t%s\n", s.Mode)
	fmt.Fprintf(w, "SAMPLES\t%d (%d frames, %d no gaze, %d out of order)\n",
		s.Conditioner.Samples, s.Conditioner.Frames,
		s.Conditioner.SkippedNoGaze, s.Conditioner.SkippedOrder)
	fmt.Fprintf(w, "HISTORY\t%d/%d (%d evicted)\n", s.History.Frames, s.History.Capacity, s.History.Evicted)
	fmt.Fprintf(w, "UDP CLIENTS\t%d\n", s.Relay.Clients)
	fmt.Fprintf(w, "SENT\t%d (%d errors, %d stale cycles)\n", s.Relay.Sent, s.Relay.SendErrors, s.Relay.StaleCycles)
	fmt.Fprintf(w, "SUBSCRIBERS\t%d\n", s.Subscribers)
	w.Flush()
}
