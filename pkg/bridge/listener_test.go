package bridge

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []hub.Message
}

func (p *recordingPublisher) Broadcast(msg hub.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return 1
}

func (p *recordingPublisher) all() []hub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hub.Message(nil), p.messages...)
}

var upstream = netip.MustParseAddrPort("127.0.0.1:40000")

func TestHandleForwardsFrameVerbatim(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewListener(nil, pub, WithLogger(quietLogger()))

	payload, err := protocol.EncodeFrame(protocol.Frame{Timestamp: 1.25, Num: 4, TrackerName: "t", Serial: "s"})
	require.NoError(t, err)

	assert.True(t, l.Handle(payload, upstream))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Data)
	assert.Equal(t, hub.JSONMessage, msgs[0].Type)
	assert.Equal(t, uint64(1), l.Stats().Frames)
}

func TestHandleReencodesSample(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewListener(nil, pub, WithLogger(quietLogger()))

	assert.True(t, l.Handle([]byte("1500,1,640.5,360\n"), upstream))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"timestamp":1500,"flag":1,"x":640.5,"y":360}`, string(msgs[0].Data))
	assert.Equal(t, uint64(1), l.Stats().Samples)
}

func TestHandleDropsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"too few fields", "abc,1"},
		{"empty", ""},
		{"bad number", "1500,1,x,360"},
		{"bad flag", "1500,yes,1,2"},
		{"broken json", `{"timestamp":`},
		{"empty object", `{}`},
		{"object without frame fields", `{"hello":"world"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			l := NewListener(nil, pub, WithLogger(quietLogger()))

			assert.False(t, l.Handle([]byte(tt.data), upstream))
			assert.Empty(t, pub.all())
			assert.Equal(t, uint64(1), l.Stats().Malformed)
		})
	}
}

func TestListenerSurvivesMalformedDatagram(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	l := NewListener(conn, pub,
		WithLogger(quietLogger()),
		WithMetrics(metrics),
		WithReadTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	sender, err := net.DialUDP("udp4", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Write([]byte("abc,1"))
	require.NoError(t, err)
	_, err = sender.Write([]byte("2000,1,10,20"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return l.Stats().Datagrams == 2 }, 2*time.Second, 10*time.Millisecond)

	msgs := pub.all()
	require.Len(t, msgs, 1, "only the valid sample is forwarded")
	assert.Contains(t, string(msgs[0].Data), `"timestamp":2000`)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.forwarded.WithLabelValues(kindSample)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, NewMetrics(nil))
	assert.NotPanics(t, func() {
		m.recordDatagram()
		m.recordMalformed()
		m.recordForwarded(kindFrame)
	})
}
