package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type ServerOptions struct {
	HTTPAddress string // e.g. ":8080" or "127.0.0.1:80"
	Handler     http.Handler
	// how long to wait for in-flight requests on shutdown, 5 secs if not given
	ShutdownTimeout time.Duration
	// called with the address we're listening on, once listening
	OnListening func(addr string)
	// optional
	Logf func(format string, args ...any)
}

func NewServer(handler http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      handler,
	}
}

// RunServer runs http server until ctx is cancelled or we get SIGINT / SIGTERM
// Requests being processed are given ShutdownTimeout to finish.
func RunServer(ctx context.Context, opts ServerOptions) error {
	if opts.HTTPAddress == "" {
		return errors.New("need to provide opts.HTTPAddress")
	}
	if opts.Handler == nil {
		return errors.New("need to provide opts.Handler")
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 5 * time.Second
	}

	ln, err := net.Listen("tcp", opts.HTTPAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on '%s': %w", opts.HTTPAddress, err)
	}
	httpSrv := NewServer(opts.Handler, opts.HTTPAddress)
	if opts.OnListening != nil {
		opts.OnListening(ln.Addr().String())
	}

	chServerClosed := make(chan error, 1)
	go func() {
		err := httpSrv.Serve(ln)
		// mute error caused by Shutdown()
		if err == http.ErrServerClosed {
			err = nil
		}
		chServerClosed <- err
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt /* SIGINT */, syscall.SIGTERM)
	defer stop()

	select {
	case err = <-chServerClosed:
		return err
	case <-ctx.Done():
	}

	logf("shutting down http server on '%s'\n", ln.Addr().String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	if err != nil {
		logf("httpSrv.Shutdown() failed with '%s'\n", err)
	}
	// don't wait forever for Serve() to return
	select {
	case <-chServerClosed:
	case <-time.After(shutdownTimeout):
	}
	return nil
}
