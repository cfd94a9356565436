// Package config loads server configuration from a YAML file and .env
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kjk/airsense/backup"
	"github.com/kjk/airsense/server"
	"github.com/kjk/airsense/streamstore"
)

// StreamConfig describes a stream and urls for accessing it
type StreamConfig struct {
	ID   string `yaml:"id"`
	File string `yaml:"file"`
	// POST url, defaults to "/" + ID
	SubmitPath string `yaml:"submit_path"`
	// GET url, defaults to SubmitPath
	RetrievePath string `yaml:"retrieve_path"`
}

type Config struct {
	// e.g. ":80" or "127.0.0.1:8080"
	Addr string `yaml:"addr"`
	// directory with stream files
	DataDir string `yaml:"data_dir"`
	// if empty, we only log to stdout
	LogDir  string `yaml:"log_dir"`
	Verbose bool   `yaml:"verbose"`
	// if true, stream files are not fsync-ed after every append
	NoSync bool `yaml:"no_sync"`

	Streams []StreamConfig `yaml:"streams"`
	Backup  backup.Config  `yaml:"backup"`
}

// Default returns configuration of the airsense deployment
func Default() *Config {
	return &Config{
		Addr:    ":80",
		DataDir: ".",
		Streams: []StreamConfig{
			{ID: "airsense/data", File: "data.csv", SubmitPath: "/airsense/data", RetrievePath: "/airsense/data"},
			{ID: "airsense/status", File: "status.txt", SubmitPath: "/airsense/status", RetrievePath: "/airsense/status"},
			{ID: "alex/data", File: "alex.txt", SubmitPath: "/alex/data", RetrievePath: "/alex/data"},
		},
	}
}

// Load reads YAML config from path over the defaults. Paths not set
// in the file are filled in. If path is empty, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = Parse(d, cfg); err != nil {
		return nil, fmt.Errorf("parsing '%s' failed: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML d into cfg. Unknown fields are an error.
func Parse(d []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(d))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	// empty file
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return err
	}
	cfg.fillPaths()
	return nil
}

func (c *Config) fillPaths() {
	for i := range c.Streams {
		sc := &c.Streams[i]
		if sc.SubmitPath == "" && sc.ID != "" {
			sc.SubmitPath = "/" + strings.TrimPrefix(sc.ID, "/")
		}
		if sc.RetrievePath == "" {
			sc.RetrievePath = sc.SubmitPath
		}
	}
}

// StoreStreams returns configuration for streamstore.Store
func (c *Config) StoreStreams() []streamstore.StreamConfig {
	var res []streamstore.StreamConfig
	for _, sc := range c.Streams {
		res = append(res, streamstore.StreamConfig{ID: sc.ID, FileName: sc.File})
	}
	return res
}

// Routes returns configuration for server.StreamsHandler
func (c *Config) Routes() []server.Route {
	var res []server.Route
	for _, sc := range c.Streams {
		res = append(res, server.Route{
			StreamID:     sc.ID,
			SubmitPath:   sc.SubmitPath,
			RetrievePath: sc.RetrievePath,
		})
	}
	return res
}

// Validate checks what can be checked without opening the store
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is not set")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is not set. For current directory, use '.'")
	}
	if len(c.Streams) == 0 {
		return errors.New("no streams configured")
	}
	for _, sc := range c.Streams {
		if sc.ID == "" {
			return errors.New("stream without id")
		}
		if sc.File == "" {
			return fmt.Errorf("stream '%s' has no file", sc.ID)
		}
		if !strings.HasPrefix(sc.SubmitPath, "/") || !strings.HasPrefix(sc.RetrievePath, "/") {
			return fmt.Errorf("stream '%s': paths must start with '/'", sc.ID)
		}
	}
	if _, err := backup.ParseCompression(c.Backup.Compression); err != nil {
		return err
	}
	if c.Backup.Interval < 0 {
		return errors.New("backup interval can't be negative")
	}
	return nil
}
