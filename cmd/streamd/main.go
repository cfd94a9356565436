// streamd is an http server that stores timestamped records
// sent by sensors and returns them on request
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"github.com/kjk/airsense/backup"
	"github.com/kjk/airsense/config"
	"github.com/kjk/airsense/httputil"
	"github.com/kjk/airsense/log"
	"github.com/kjk/airsense/server"
	"github.com/kjk/airsense/streamstore"
)

type options struct {
	configPath string
	envPath    string
	addr       string
	dataDir    string
	logDir     string
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("streamd", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&opts.envPath, "env", "", "path to .env file with backup credentials")
	flagSet.StringVar(&opts.addr, "addr", "", "address to listen on e.g. :8080 (overrides config)")
	flagSet.StringVar(&opts.dataDir, "data-dir", "", "directory with stream files (overrides config)")
	flagSet.StringVar(&opts.logDir, "log-dir", "", "directory for log files (overrides config)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.logDir != "" {
		cfg.LogDir = opts.logDir
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	cfg.ApplyEnv(config.OSEnv())
	if opts.envPath != "" {
		env, err := config.ReadEnvFile(opts.envPath)
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnv(env)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run starts the server and blocks until ctx is cancelled or
// we get SIGINT / SIGTERM
func run(ctx context.Context, cfg *config.Config, onListening func(addr string)) error {
	store := &streamstore.Store{
		DataDir: cfg.DataDir,
		Streams: cfg.StoreStreams(),
		NoSync:  cfg.NoSync,
		Logf:    log.Logf,
		OnAppend: func(rec *streamstore.Record) {
			log.Event("append", "stream", rec.StreamID, "offset", rec.Offset, "size", rec.Size)
		},
	}
	if err := streamstore.OpenStore(store); err != nil {
		return err
	}
	defer func() {
		log.IfErrf(store.Close(), "store.Close() failed")
	}()
	for _, st := range store.AllStats() {
		log.Logf("stream '%s': %d records, %d bytes in '%s'\n", st.ID, st.Records, st.Size, st.FileName)
	}

	srv, err := server.NewStreamsServer(store, cfg.Routes())
	if err != nil {
		return err
	}
	server.IterURLS(srv.Handlers, func(uri string) {
		log.Verbosef("serving '%s'\n", uri)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if cfg.Backup.IsEnabled() {
		b, err := backup.New(ctx, &cfg.Backup, store)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
	}

	opts := httputil.ServerOptions{
		HTTPAddress: cfg.Addr,
		Handler:     srv,
		Logf:        log.Logf,
		OnListening: func(addr string) {
			log.Logf("listening on 'http://%s', data dir: '%s'\n", addr, cfg.DataDir)
			log.Event("started", "addr", addr)
			if onListening != nil {
				onListening(addr)
			}
		},
	}
	err = httputil.RunServer(ctx, opts)
	// stop backup after the server so that it backs up everything
	cancel()
	wg.Wait()
	return err
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "streamd: %s\n", err)
		os.Exit(2)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streamd: %s\n", err)
		os.Exit(1)
	}
	log.Verbose = cfg.Verbose
	log.Init(&log.Config{Dir: cfg.LogDir})

	err = run(context.Background(), cfg, nil)
	if err != nil {
		log.Errorf("streamd: %s", err)
	}
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}
