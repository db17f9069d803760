package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sentinel errors for malformed datagrams.
var (
	// ErrMalformedSample is returned when a CSV sample cannot be parsed.
	ErrMalformedSample = errors.New("protocol: malformed sample")

	// ErrMalformedFrame is returned when a JSON frame cannot be decoded.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// sampleFields is the number of positional fields in a CSV sample
const sampleFields = 4

// Sample is one lightweight upstream reading: "{timestamp_ms},{flag},{x},{y}"
type Sample struct {
	TimestampMs float64
	Flag        int
	X           float64
	Y           float64
}

// HasGaze reports whether the producer flagged a valid reading.
// Flag 0 means tracking was lost for this cycle.
func (s Sample) HasGaze() bool {
	return s.Flag != 0
}

// Seconds returns the sample timestamp in seconds
func (s Sample) Seconds() float64 {
	return s.TimestampMs / 1000
}

// Message converts the sample into its forwarded JSON form
func (s Sample) Message() SampleMessage {
	return SampleMessage{
		Timestamp: s.TimestampMs,
		Flag:      s.Flag,
		X:         s.X,
		Y:         s.Y,
	}
}

// ParseSample parses a CSV sample datagram. Fields are positional and
// unescaped; trailing fields beyond the fourth are ignored.
func ParseSample(data []byte) (Sample, error) {
	line := strings.TrimSpace(string(data))
	parts := strings.Split(line, ",")
	if len(parts) < sampleFields {
		return Sample{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedSample, sampleFields, len(parts))
	}

	ts, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedSample, err)
	}
	flag, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Sample{}, fmt.Errorf("%w: flag: %v", ErrMalformedSample, err)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: x: %v", ErrMalformedSample, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: y: %v", ErrMalformedSample, err)
	}
	if !finite(ts) {
		return Sample{}, fmt.Errorf("%w: timestamp is not finite", ErrMalformedSample)
	}
	if flag != 0 && (!finite(x) || !finite(y)) {
		return Sample{}, fmt.Errorf("%w: gaze is not finite", ErrMalformedSample)
	}

	return Sample{TimestampMs: ts, Flag: flag, X: x, Y: y}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatSample renders a sample in the CSV upstream format
func FormatSample(s Sample) []byte {
	return []byte(fmt.Sprintf("%s,%d,%s,%s",
		strconv.FormatFloat(s.TimestampMs, 'f', -1, 64),
		s.Flag,
		strconv.FormatFloat(s.X, 'f', -1, 64),
		strconv.FormatFloat(s.Y, 'f', -1, 64)))
}

// IsFrameMessage reports whether a datagram looks like a JSON frame
// rather than a CSV sample.
func IsFrameMessage(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// ToRawSample converts an upstream CSV sample into a sensor reading
func (s Sample) ToRawSample(seq uint64, tracker Tracker) RawSample {
	raw := RawSample{
		Timestamp: s.Seconds(),
		Sequence:  seq,
		Tracker:   tracker,
	}
	if s.HasGaze() {
		raw.Gaze = &Point2d{X: s.X, Y: s.Y}
	}
	return raw
}
