package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_WireFields(t *testing.T) {
	f := Frame{
		Timestamp:   12.5,
		Num:         42,
		Left:        Point3d{X: 1, Y: 2, Z: 3},
		Right:       Point3d{X: 4, Y: 5, Z: 6},
		Gaze:        Point2d{X: 100, Y: 200},
		Fixation:    Point2d{X: 101, Y: 201},
		TrackerName: "Tobii Eye Tracker 5",
		Serial:      "IS5FF-100",
	}

	data, err := EncodeFrame(f)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))

	for _, key := range []string{"timestamp", "num", "left", "right", "gaze", "fixation", "tracker_name", "serial"} {
		assert.Contains(t, generic, key)
	}
	assert.Len(t, generic, 8)

	left := generic["left"].(map[string]any)
	assert.Equal(t, 3.0, left["z"])
	gaze := generic["gaze"].(map[string]any)
	assert.Len(t, gaze, 2)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"timestamp": "soon"`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestDecodeFrame_RequiresIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "empty object", input: `{}`, wantErr: true},
		{name: "unrelated object", input: `{"hello":"world"}`, wantErr: true},
		{name: "zero timestamp only", input: `{"timestamp":0}`, wantErr: true},
		{name: "num only", input: `{"num":0}`},
		{name: "timestamp only", input: `{"timestamp":1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseSample(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Sample
		wantErr bool
	}{
		{
			name:  "valid",
			input: "1700000000123,1,512.5,384.25",
			want:  Sample{TimestampMs: 1700000000123, Flag: 1, X: 512.5, Y: 384.25},
		},
		{
			name:  "trailing newline and spaces",
			input: " 10, 0 ,1,2\n",
			want:  Sample{TimestampMs: 10, Flag: 0, X: 1, Y: 2},
		},
		{
			name:  "extra fields ignored",
			input: "10,1,1,2,extra",
			want:  Sample{TimestampMs: 10, Flag: 1, X: 1, Y: 2},
		},
		{name: "too few fields", input: "abc,1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "bad timestamp", input: "abc,1,2,3", wantErr: true},
		{name: "bad flag", input: "10,yes,2,3", wantErr: true},
		{name: "bad x", input: "10,1,left,3", wantErr: true},
		{name: "bad y", input: "10,1,2,", wantErr: true},
		{name: "NaN timestamp", input: "NaN,1,100,100", wantErr: true},
		{name: "infinite timestamp", input: "+Inf,1,100,100", wantErr: true},
		{name: "negative infinite timestamp", input: "-inf,1,100,100", wantErr: true},
		{name: "NaN gaze with flag set", input: "10,1,NaN,100", wantErr: true},
		{name: "infinite gaze with flag set", input: "10,1,100,Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSample([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedSample))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSample_NonFiniteGazeWithoutFlag(t *testing.T) {
	got, err := ParseSample([]byte("10,0,NaN,NaN"))
	require.NoError(t, err)
	assert.False(t, got.HasGaze())
	assert.Nil(t, got.ToRawSample(1, Tracker{}).Gaze)
}

func TestFormatSample_ParsesBack(t *testing.T) {
	s := Sample{TimestampMs: 1500.25, Flag: 1, X: -3.5, Y: 7}
	got, err := ParseSample(FormatSample(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSample_ToRawSample(t *testing.T) {
	tracker := Tracker{Name: "udp", Serial: "upstream"}

	raw := Sample{TimestampMs: 2500, Flag: 1, X: 3, Y: 4}.ToRawSample(7, tracker)
	assert.InDelta(t, 2.5, raw.Timestamp, 1e-12)
	assert.Equal(t, uint64(7), raw.Sequence)
	require.NotNil(t, raw.Gaze)
	assert.Equal(t, Point2d{X: 3, Y: 4}, *raw.Gaze)
	assert.True(t, raw.HasGaze())

	lost := Sample{TimestampMs: 2500, Flag: 0, X: 3, Y: 4}.ToRawSample(8, tracker)
	assert.Nil(t, lost.Gaze)
	assert.False(t, lost.HasGaze())
}

func TestRawSample_HasGaze_NonFinite(t *testing.T) {
	raw := RawSample{Gaze: &Point2d{X: math.NaN(), Y: 1}}
	assert.False(t, raw.HasGaze())

	raw.Gaze = &Point2d{X: 1, Y: math.Inf(1)}
	assert.False(t, raw.HasGaze())
}

func TestIsFrameMessage(t *testing.T) {
	assert.True(t, IsFrameMessage([]byte(`  {"timestamp":1}`)))
	assert.False(t, IsFrameMessage([]byte("10,1,2,3")))
	assert.False(t, IsFrameMessage([]byte("   ")))
}

func TestSampleMessage_Bytes(t *testing.T) {
	data, err := Sample{TimestampMs: 10, Flag: 1, X: 1.5, Y: 2}.Message().Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":10,"flag":1,"x":1.5,"y":2}`, string(data))
}
