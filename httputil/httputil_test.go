package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestJoinURL(t *testing.T) {
	tests := []string{
		"foo", "bar", "foo/bar",
		"foo", "/bar", "foo/bar",
		"foo/", "bar", "foo/bar",
		"foo/", "/bar", "foo/bar",
		"http://localhost:80", "/airsense/data", "http://localhost:80/airsense/data",
	}
	n := len(tests)
	for i := 0; i < n; i += 3 {
		got := JoinURL(tests[i], tests[i+1])
		exp := tests[i+2]
		assert.Equal(t, exp, got)
	}
}

func TestGetBestRemoteAddress(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[::1]:58292"
	assert.Equal(t, "[::1]", GetBestRemoteAddress(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	assert.Equal(t, "1.2.3.4", GetBestRemoteAddress(r))

	r.Header.Set("X-Real-Ip", "9.9.9.9")
	assert.Equal(t, "9.9.9.9", GetBestRemoteAddress(r))

	r.Header.Set("CF-Connecting-IP", "8.8.8.8")
	assert.Equal(t, "8.8.8.8", GetBestRemoteAddress(r))
}

func TestCapturingResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewCapturingResponseWriter(rec)
	_, _ = w.Write([]byte("hello"))
	assert.Equal(t, http.StatusOK, w.StatusCode)
	assert.Equal(t, int64(5), w.Size)

	rec = httptest.NewRecorder()
	w = NewCapturingResponseWriter(rec)
	WritePlainText(w, http.StatusInternalServerError, []byte("oops"))
	assert.Equal(t, http.StatusInternalServerError, w.StatusCode)
	assert.Equal(t, int64(4), w.Size)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRunServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePlainText(w, http.StatusOK, []byte("pong"))
	})
	chAddr := make(chan string, 1)
	chDone := make(chan error, 1)
	go func() {
		chDone <- RunServer(ctx, ServerOptions{
			HTTPAddress: "127.0.0.1:0",
			Handler:     handler,
			OnListening: func(addr string) {
				chAddr <- addr
			},
		})
	}()

	var addr string
	select {
	case addr = <-chAddr:
	case err := <-chDone:
		t.Fatalf("RunServer() failed with '%v'", err)
	}

	resp, err := http.Get("http://" + addr + "/ping")
	assert.NoError(t, err)
	d, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NoError(t, err)
	assert.Equal(t, "pong", string(d))

	cancel()
	select {
	case err = <-chDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServer() didn't return after ctx was cancelled")
	}

	err = RunServer(context.Background(), ServerOptions{Handler: handler})
	assert.Error(t, err)
}
