package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/session"
)

var serveOpts struct {
	bind       string
	port       int
	sourcePort int
	httpPort   int
	mode       string
	clock      string
	interval   time.Duration
	clientTTL  time.Duration
	natsURL    string
	noSource   bool
	noHTTP     bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Condition samples and relay frames to registered clients",
	Long: `Runs a relay session: CSV samples arriving on the source port are
conditioned into frames, and the freshest frame is sent to every endpoint
that has registered on the registration port. The HTTP API and websocket
feed listen on the bridge port.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.bind, "bind", "", "Registration bind address")
	f.IntVarP(&serveOpts.port, "port", "p", 0, "Registration/broadcast UDP port")
	f.IntVar(&serveOpts.sourcePort, "source-port", 0, "CSV sample source UDP port")
	f.IntVar(&serveOpts.httpPort, "http-port", 0, "HTTP API and websocket port")
	f.StringVar(&serveOpts.mode, "mode", "", "Broadcast mode: ticker or event")
	f.StringVar(&serveOpts.clock, "clock", "", "Staleness clock: wall or sensor")
	f.DurationVar(&serveOpts.interval, "interval", 0, "Broadcast interval in ticker mode")
	f.DurationVar(&serveOpts.clientTTL, "client-ttl", 0, "Drop clients silent for this long (0 keeps them)")
	f.StringVar(&serveOpts.natsURL, "nats-url", "", "Publish frames to this NATS server")
	f.BoolVar(&serveOpts.noSource, "no-source", false, "Disable the UDP sample source")
	f.BoolVar(&serveOpts.noHTTP, "no-http", false, "Disable the HTTP API and websocket feed")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if f.Changed("bind") {
		cfg.Relay.Bind = serveOpts.bind
	}
	if f.Changed("port") {
		cfg.Relay.RegistrationPort = serveOpts.port
	}
	if f.Changed("source-port") {
		cfg.Source.Port = serveOpts.sourcePort
	}
	if f.Changed("http-port") {
		cfg.Bridge.WSPort = serveOpts.httpPort
	}
	if f.Changed("mode") {
		cfg.Relay.Mode = serveOpts.mode
	}
	if f.Changed("clock") {
		cfg.Relay.Clock = serveOpts.clock
	}
	if f.Changed("interval") {
		cfg.Relay.Interval = serveOpts.interval
	}
	if f.Changed("client-ttl") {
		cfg.Relay.ClientTTL = serveOpts.clientTTL
	}
	if f.Changed("nats-url") {
		cfg.NATS.URL = serveOpts.natsURL
	}
	if serveOpts.noSource {
		cfg.Source.Enabled = false
	}

	opts := []session.Option{session.WithRegistry(newRegistry())}
	if serveOpts.noHTTP {
		opts = append(opts, session.WithoutHTTP())
	}

	sess, err := session.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := sess.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case <-sess.Done():
		log.Warn("Session ended unexpectedly")
	}
	return sess.Stop()
}
