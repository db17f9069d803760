// Package protocol defines the gaze data types and their wire formats.
// Frames travel as JSON datagrams; lightweight upstream producers send CSV samples.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point2d is a position on the gaze plane
type Point2d struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are usable numbers
func (p Point2d) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Point3d is an eye position in tracker space
type Point3d struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Tracker identifies the device that produced a sample
type Tracker struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

// RawSample is one reading delivered by the sensor driver.
// A nil Gaze means the tracker had no reading this cycle.
type RawSample struct {
	Timestamp float64  // Monotonic seconds
	Sequence  uint64   // Sensor frame counter
	Gaze      *Point2d // nil when tracking was lost
	Left      Point3d
	Right     Point3d
	Tracker   Tracker
}

// HasGaze reports whether the sample carries a usable gaze reading
func (s RawSample) HasGaze() bool {
	return s.Gaze != nil && s.Gaze.IsFinite()
}

// Frame is a conditioned sample: smoothed gaze plus fixation centroid.
// Frames are values and are copied between the conditioner, history and relay.
type Frame struct {
	Timestamp   float64 `json:"timestamp"`
	Num         uint64  `json:"num"`
	Left        Point3d `json:"left"`
	Right       Point3d `json:"right"`
	Gaze        Point2d `json:"gaze"`
	Fixation    Point2d `json:"fixation"`
	TrackerName string  `json:"tracker_name"`
	Serial      string  `json:"serial"`
}

// EncodeFrame returns the JSON datagram payload for a frame
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a JSON frame datagram. A frame must carry a "num"
// field or a non-zero timestamp.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Timestamp == 0 {
		var fields struct {
			Num *uint64 `json:"num"`
		}
		if err := json.Unmarshal(data, &fields); err != nil || fields.Num == nil {
			return Frame{}, fmt.Errorf("%w: missing num and timestamp", ErrMalformedFrame)
		}
	}
	return f, nil
}

// SampleMessage is the JSON form of a CSV upstream sample, as forwarded
// to persistent subscribers by the bridge.
type SampleMessage struct {
	Timestamp float64 `json:"timestamp"` // Milliseconds, as sent by the producer
	Flag      int     `json:"flag"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Bytes returns the JSON-encoded message
func (m SampleMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}
