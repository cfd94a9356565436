package config

import (
	"fmt"
	"os"
	"strings"
)

// ParseEnv parses .env file content i.e. KEY=VALUE lines.
// Empty lines and lines starting with '#' are skipped.
func ParseEnv(d []byte) (map[string]string, error) {
	s := strings.ReplaceAll(string(d), "\r\n", "\n")
	lines := strings.Split(s, "\n")
	m := make(map[string]string)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid line %d '%s' in .env", i+1, line)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"`)
		m[key] = val
	}
	return m, nil
}

// ReadEnvFile reads and parses .env file
func ReadEnvFile(path string) (map[string]string, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseEnv(d)
}

// names of env variables for backup storage
const (
	EnvSpacesKey      = "SPACES_KEY"
	EnvSpacesSecret   = "SPACES_SECRET"
	EnvSpacesBucket   = "SPACES_BUCKET"
	EnvSpacesEndpoint = "SPACES_ENDPOINT"
	EnvSpacesRegion   = "SPACES_REGION"
)

// ApplyEnv over-writes backup credentials with values from env.
// Values not in env are left as is.
func (c *Config) ApplyEnv(env map[string]string) {
	set := func(dst *string, key string) {
		if v := env[key]; v != "" {
			*dst = v
		}
	}
	b := &c.Backup
	set(&b.Access, EnvSpacesKey)
	set(&b.Secret, EnvSpacesSecret)
	set(&b.Bucket, EnvSpacesBucket)
	set(&b.Endpoint, EnvSpacesEndpoint)
	set(&b.Region, EnvSpacesRegion)
}

// OSEnv returns backup-related variables from process environment
func OSEnv() map[string]string {
	m := map[string]string{}
	keys := []string{EnvSpacesKey, EnvSpacesSecret, EnvSpacesBucket, EnvSpacesEndpoint, EnvSpacesRegion}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			m[k] = v
		}
	}
	return m
}
