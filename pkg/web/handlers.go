package web

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/relay"
)

var errNotANumber = errors.New("web: value is NaN")

// ClientsResponse lists both kinds of subscriber
type ClientsResponse struct {
	UDP       []relay.ClientInfo `json:"udp"`
	WebSocket []hub.ClientInfo   `json:"websocket"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the session summary
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.deps.Status == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "status not available")
	}
	return c.JSON(s.deps.Status())
}

// handleLatest returns the newest frame. With ?fresh=true a frame older
// than the staleness threshold is treated as absent.
func (s *Server) handleLatest(c *fiber.Ctx) error {
	frame, ok := s.deps.History.Latest()
	if c.QueryBool("fresh") {
		frame, ok = s.deps.History.LatestNonStale(s.deps.Staleness, s.deps.Clock())
	}
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no frame")
	}
	return c.JSON(frame)
}

// handleAt returns the frame nearest to ?ts= within ?threshold=
func (s *Server) handleAt(c *fiber.Ctx) error {
	ts, err := strconv.ParseFloat(c.Query("ts"), 64)
	if err != nil || !finite(ts) {
		return errorJSON(c, fiber.StatusBadRequest, "ts must be a finite number")
	}

	threshold := DefaultNearestThreshold
	if v := c.Query("threshold"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil || !finite(threshold) || threshold < 0 {
			return errorJSON(c, fiber.StatusBadRequest, "threshold must be a finite non-negative number")
		}
	}

	frame, ok := s.deps.History.NearestTo(ts, threshold)
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no frame within threshold")
	}
	return c.JSON(frame)
}

// handleHistory returns frames with from <= timestamp <= to. Either bound
// may be omitted.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	from, err := queryBound(c, "from", math.Inf(-1))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "from must be a number")
	}
	to, err := queryBound(c, "to", math.Inf(1))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "to must be a number")
	}
	if from > to {
		return errorJSON(c, fiber.StatusBadRequest, "from must not exceed to")
	}

	frames := s.deps.History.Between(from, to)
	if frames == nil {
		frames = []protocol.Frame{}
	}
	return c.JSON(frames)
}

func queryBound(c *fiber.Ctx, key string, fallback float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, errNotANumber
	}
	return f, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// handleClients lists UDP and websocket subscribers
func (s *Server) handleClients(c *fiber.Ctx) error {
	resp := ClientsResponse{
		UDP:       s.deps.Registry.Clients(),
		WebSocket: []hub.ClientInfo{},
	}
	if s.deps.Hub != nil {
		resp.WebSocket = s.deps.Hub.Clients()
	}
	return c.JSON(resp)
}
