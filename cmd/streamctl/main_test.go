package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/spf13/pflag"

	"github.com/kjk/airsense/client"
	"github.com/kjk/airsense/server"
	"github.com/kjk/airsense/streamstore"
)

func startServer(t *testing.T) string {
	store := &streamstore.Store{
		DataDir: t.TempDir(),
		Streams: []streamstore.StreamConfig{
			{ID: "airsense/status", FileName: "status.txt"},
		},
		NoSync: true,
	}
	assert.NoError(t, streamstore.OpenStore(store))
	routes := []server.Route{
		{StreamID: "airsense/status", SubmitPath: "/airsense/status", RetrievePath: "/airsense/status"},
	}
	srv, err := server.NewStreamsServer(store, routes)
	assert.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})
	return ts.URL
}

func runCmd(stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	url := startServer(t)

	out, _, err := runCmd("", "--server", url, "ping")
	assert.NoError(t, err)
	assert.Equal(t, url+" is up\n", out)

	_, _, err = runCmd("", "--server", url, "submit", "/airsense/status", "booted")
	assert.NoError(t, err)
	_, _, err = runCmd("battery low\n", "--server", url, "submit", "/airsense/status", "-")
	assert.NoError(t, err)

	out, _, err = runCmd("", "--server", url, "get", "/airsense/status")
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ", booted"))
	assert.True(t, strings.HasSuffix(lines[1], ", battery low"))

	_, _, err = runCmd("", "--server", url, "get", "/alex/data")
	assert.True(t, errors.Is(err, client.ErrNotFound))
}

func TestUsageErrors(t *testing.T) {
	_, stderr, err := runCmd("")
	assert.Error(t, err)
	assert.True(t, strings.Contains(stderr, "usage: streamctl"))

	_, _, err = runCmd("", "--help")
	assert.True(t, errors.Is(err, pflag.ErrHelp))

	tests := [][]string{
		{"submit", "/airsense/status"},
		{"get"},
		{"frobnicate"},
	}
	for _, args := range tests {
		_, _, err = runCmd("", args...)
		assert.Error(t, err, "args: %v", args)
	}
}
