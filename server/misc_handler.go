package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidwall/pretty"

	"github.com/kjk/airsense/httputil"
	"github.com/kjk/airsense/streamstore"
)

// StatsProvider is implemented by *streamstore.Store
type StatsProvider interface {
	AllStats() []*streamstore.StreamStats
}

const greeting = "airsense stream server\n"

type streamStatsJSON struct {
	ID         string `json:"id"`
	File       string `json:"file"`
	Size       int64  `json:"size"`
	Records    int64  `json:"records"`
	LastAppend string `json:"last_append,omitempty"`
}

// NewMiscHandler serves /, /ping and, if stats is not nil, /api/stats
func NewMiscHandler(stats StatsProvider) *DynamicHandler {
	urls := []string{"/", "/ping"}
	if stats != nil {
		urls = append(urls, "/api/stats")
	}
	get := func(uri string) func(http.ResponseWriter, *http.Request) {
		switch uri {
		case "/":
			return onlyGet(serveText(greeting))
		case "/ping":
			return onlyGet(serveText("pong"))
		case "/api/stats":
			if stats == nil {
				return nil
			}
			return onlyGet(func(w http.ResponseWriter, r *http.Request) {
				serveStats(w, stats)
			})
		}
		return nil
	}
	return NewDynamicHandler(get, func() []string { return urls })
}

func onlyGet(fn HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			httputil.WriteStatus(w, http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func serveText(s string) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WritePlainText(w, http.StatusOK, []byte(s))
	}
}

func serveStats(w http.ResponseWriter, stats StatsProvider) {
	var res []*streamStatsJSON
	for _, st := range stats.AllStats() {
		v := &streamStatsJSON{
			ID:      st.ID,
			File:    st.FileName,
			Size:    st.Size,
			Records: st.Records,
		}
		if !st.LastAppend.IsZero() {
			v.LastAppend = st.LastAppend.UTC().Format(time.RFC3339Nano)
		}
		res = append(res, v)
	}
	d, err := json.Marshal(map[string]any{"streams": res})
	if err != nil {
		httputil.WriteStatus(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pretty.Pretty(d))
}
