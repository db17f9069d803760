package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/pkg/web"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "bridge", "status", "watch", "listen"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":"1234","mode":"ticker","history":{"frames":5,"capacity":1000}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "--addr", srv.URL, "--log-level", "error"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "1234")
	assert.Contains(t, out.String(), "5/1000")
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, web.Status{Session: "abc", Mode: config.ModeEvent, Subscribers: 2})
	assert.Contains(t, out.String(), "abc")
	assert.Contains(t, out.String(), "event")
	assert.Contains(t, out.String(), "SUBSCRIBERS")
}
