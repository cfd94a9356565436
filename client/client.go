// Package client talks to a stream server over HTTP
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/kjk/airsense/httputil"
)

// ErrNotFound is returned when the server doesn't know the url
var ErrNotFound = errors.New("not found")

const mimePlainText = "text/plain"

type Client struct {
	// e.g. "http://localhost:8080"
	BaseURL string
	// if nil, http.DefaultClient is used
	HTTPClient *http.Client
	// per-request timeout, 10 seconds if 0
	Timeout time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

func (c *Client) builder(path string) *requests.Builder {
	uri := httputil.JoinURL(c.BaseURL, path)
	rb := requests.URL(uri)
	if c.HTTPClient != nil {
		rb = rb.Client(c.HTTPClient)
	}
	return rb
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func wrapErr(method string, path string, err error) error {
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	return fmt.Errorf("%s %s failed: %w", method, path, err)
}

// Submit sends payload to be stored as a new record
func (c *Client) Submit(ctx context.Context, path string, payload []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err := c.builder(path).
		Method(http.MethodPost).
		BodyBytes(payload).
		ContentType(mimePlainText).
		Fetch(ctx)
	if err != nil {
		return wrapErr("POST", path, err)
	}
	return nil
}

// Retrieve returns all records of a stream
func (c *Client) Retrieve(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var buf bytes.Buffer
	err := c.builder(path).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, wrapErr("GET", path, err)
	}
	return buf.Bytes(), nil
}

// Ping checks that the server is up
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var s string
	err := c.builder("/ping").
		ToString(&s).
		Fetch(ctx)
	if err != nil {
		return wrapErr("GET", "/ping", err)
	}
	if s != "pong" {
		return fmt.Errorf("GET /ping: unexpected response '%s'", s)
	}
	return nil
}
