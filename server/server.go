package server

import (
	"net/http"
	"time"

	"github.com/kjk/airsense/httputil"
	"github.com/kjk/airsense/log"
)

// Server dispatches requests to Handlers, in order
type Server struct {
	Handlers []Handler
	// if set, called after every request. If nil, log.HTTPRequest is used
	OnRequest func(r *http.Request, code int, nWritten int64, dur time.Duration)
}

type HandlerFunc = func(w http.ResponseWriter, r *http.Request)
type GetHandlerFunc = func(string) func(w http.ResponseWriter, r *http.Request)

// Handler represents one or more urls
type Handler interface {
	// returns a handler for this url
	// if nil, doesn't handle this url
	Get(url string) HandlerFunc
	// get all urls handled by this Handler
	URLS() []string
}

type DynamicHandler struct {
	get  GetHandlerFunc
	urls func() []string
}

func (h *DynamicHandler) Get(uri string) func(http.ResponseWriter, *http.Request) {
	return h.get(uri)
}

func (h *DynamicHandler) URLS() []string {
	return h.urls()
}

func NewDynamicHandler(get GetHandlerFunc, urls func() []string) *DynamicHandler {
	return &DynamicHandler{
		get:  get,
		urls: urls,
	}
}

// IterURLS calls a function for every url known to handlers
func IterURLS(handlers []Handler, fn func(uri string)) {
	for _, h := range handlers {
		for _, uri := range h.URLS() {
			fn(uri)
		}
	}
}

func (s *Server) FindHandlerExact(uri string) HandlerFunc {
	for _, h := range s.Handlers {
		if send := h.Get(uri); send != nil {
			return send
		}
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeStart := time.Now()
	cw := httputil.NewCapturingResponseWriter(w)
	defer func() {
		dur := time.Since(timeStart)
		if s.OnRequest != nil {
			s.OnRequest(r, cw.StatusCode, cw.Size, dur)
			return
		}
		log.HTTPRequest(r, cw.StatusCode, cw.Size, dur)
	}()

	uri := r.URL.Path
	if serve := s.FindHandlerExact(uri); serve != nil {
		serve(cw, r)
		return
	}
	httputil.WriteStatus(cw, http.StatusNotFound)
}

// NewStreamsServer returns a Server that serves routes from store
// and misc urls (/, /ping, /api/stats)
func NewStreamsServer(store StreamStore, routes []Route) (*Server, error) {
	sh, err := NewStreamsHandler(store, routes)
	if err != nil {
		return nil, err
	}
	var stats StatsProvider
	if sp, ok := store.(StatsProvider); ok {
		stats = sp
	}
	return &Server{
		Handlers: []Handler{sh, NewMiscHandler(stats)},
	}, nil
}
