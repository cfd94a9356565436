package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kjk/airsense/httputil"
	"github.com/kjk/airsense/log"
	"github.com/kjk/airsense/streamstore"
)

// StreamStore is what StreamsHandler needs from *streamstore.Store
type StreamStore interface {
	IsKnownStream(streamID string) bool
	Append(streamID string, payload []byte, capturedAt time.Time) (*streamstore.Record, error)
	ReadAll(streamID string) ([]byte, error)
}

// StreamsHandler serves POST (submit) and GET (retrieve) for streams
type StreamsHandler struct {
	store  StreamStore
	routes []Route
}

func NewStreamsHandler(store StreamStore, routes []Route) (*StreamsHandler, error) {
	if err := ValidateRoutes(routes, store); err != nil {
		return nil, err
	}
	return &StreamsHandler{
		store:  store,
		routes: append([]Route{}, routes...),
	}, nil
}

func (h *StreamsHandler) Get(uri string) HandlerFunc {
	submitID := ""
	retrieveID := ""
	for _, r := range h.routes {
		if r.SubmitPath == uri {
			submitID = r.StreamID
		}
		if r.RetrievePath == uri {
			retrieveID = r.StreamID
		}
	}
	if submitID == "" && retrieveID == "" {
		return nil
	}
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && submitID != "":
			h.serveSubmit(w, r, submitID)
		case (r.Method == http.MethodGet || r.Method == http.MethodHead) && retrieveID != "":
			h.serveRetrieve(w, r, retrieveID)
		default:
			var allow []string
			if retrieveID != "" {
				allow = append(allow, http.MethodGet, http.MethodHead)
			}
			if submitID != "" {
				allow = append(allow, http.MethodPost)
			}
			w.Header().Set("Allow", strings.Join(allow, ", "))
			httputil.WriteStatus(w, http.StatusMethodNotAllowed)
		}
	}
}

func (h *StreamsHandler) URLS() []string {
	var urls []string
	seen := map[string]bool{}
	for _, r := range h.routes {
		for _, uri := range []string{r.SubmitPath, r.RetrievePath} {
			if !seen[uri] {
				seen[uri] = true
				urls = append(urls, uri)
			}
		}
	}
	return urls
}

func statusForStoreError(err error) int {
	if errors.Is(err, streamstore.ErrUnknownStream) {
		return http.StatusNotFound
	}
	if !streamstore.IsStorageError(err) {
		log.Logf("statusForStoreError: unexpected error type %T\n", err)
	}
	return http.StatusInternalServerError
}

// POST <submit path>
// body is the payload
func (h *StreamsHandler) serveSubmit(w http.ResponseWriter, r *http.Request, streamID string) {
	// timestamp is when we got the request, not when it was written
	capturedAt := time.Now()
	if !h.store.IsKnownStream(streamID) {
		httputil.WriteStatus(w, http.StatusNotFound)
		return
	}
	d, err := io.ReadAll(r.Body)
	if err != nil {
		log.Logf("serveSubmit: '%s': reading body failed with '%s'\n", streamID, err)
		httputil.WriteStatus(w, http.StatusBadRequest)
		return
	}
	rec, err := h.store.Append(streamID, d, capturedAt)
	if err != nil {
		log.Errorf("serveSubmit: store.Append('%s') failed with '%s'", streamID, err)
		log.ErrorEventFromRequest(r, err, "append_failed", "stream", streamID)
		httputil.WriteStatus(w, statusForStoreError(err))
		return
	}
	log.Verbosef("serveSubmit: '%s' %d bytes at offset %d\n", streamID, rec.Size, rec.Offset)
	httputil.WriteStatus(w, http.StatusOK)
}

// GET <retrieve path>
// returns all records as text/plain
func (h *StreamsHandler) serveRetrieve(w http.ResponseWriter, r *http.Request, streamID string) {
	if !h.store.IsKnownStream(streamID) {
		httputil.WriteStatus(w, http.StatusNotFound)
		return
	}
	d, err := h.store.ReadAll(streamID)
	if err != nil {
		log.Errorf("serveRetrieve: store.ReadAll('%s') failed with '%s'", streamID, err)
		httputil.WriteStatus(w, statusForStoreError(err))
		return
	}
	httputil.WritePlainText(w, http.StatusOK, d)
}
