package server

import (
	"fmt"
	"strings"
)

// Route maps a stream to the urls for submitting and retrieving records.
// SubmitPath and RetrievePath can be the same url.
type Route struct {
	StreamID     string
	SubmitPath   string // POST
	RetrievePath string // GET
}

// paths served by MiscHandler
var reservedPaths = []string{"/", "/ping", "/api/stats"}

func validatePath(streamID string, path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("stream '%s': path '%s' must start with '/'", streamID, path)
	}
	if strings.Contains(path, "://") {
		return fmt.Errorf("stream '%s': got absolute url '%s'", streamID, path)
	}
	for _, p := range reservedPaths {
		if path == p {
			return fmt.Errorf("stream '%s': path '%s' is reserved", streamID, path)
		}
	}
	return nil
}

// ValidateRoutes checks that routes are well formed, that every stream
// is known to the store and that no url is used twice for the same method
func ValidateRoutes(routes []Route, store StreamStore) error {
	if len(routes) == 0 {
		return fmt.Errorf("no routes")
	}
	submitPaths := map[string]string{}
	retrievePaths := map[string]string{}
	for _, r := range routes {
		if !store.IsKnownStream(r.StreamID) {
			return fmt.Errorf("route for unknown stream '%s'", r.StreamID)
		}
		if err := validatePath(r.StreamID, r.SubmitPath); err != nil {
			return err
		}
		if err := validatePath(r.StreamID, r.RetrievePath); err != nil {
			return err
		}
		if other, ok := submitPaths[r.SubmitPath]; ok {
			return fmt.Errorf("POST '%s' is used by streams '%s' and '%s'", r.SubmitPath, other, r.StreamID)
		}
		submitPaths[r.SubmitPath] = r.StreamID
		if other, ok := retrievePaths[r.RetrievePath]; ok {
			return fmt.Errorf("GET '%s' is used by streams '%s' and '%s'", r.RetrievePath, other, r.StreamID)
		}
		retrievePaths[r.RetrievePath] = r.StreamID
	}
	return nil
}
