package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert"

	"github.com/kjk/airsense/streamstore"
)

var testRoutes = []Route{
	{StreamID: "airsense/data", SubmitPath: "/airsense/data", RetrievePath: "/airsense/data"},
	{StreamID: "airsense/status", SubmitPath: "/airsense/status", RetrievePath: "/airsense/status"},
	{StreamID: "alex/data", SubmitPath: "/alex/data", RetrievePath: "/alex/data"},
}

func openTestStore(t *testing.T) *streamstore.Store {
	store := &streamstore.Store{
		DataDir: t.TempDir(),
		Streams: []streamstore.StreamConfig{
			{ID: "airsense/data", FileName: "data.csv"},
			{ID: "airsense/status", FileName: "status.txt"},
			{ID: "alex/data", FileName: "alex.txt"},
		},
		NoSync: true,
	}
	err := streamstore.OpenStore(store)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestServer(t *testing.T, store StreamStore, routes []Route) *Server {
	srv, err := NewStreamsServer(store, routes)
	assert.NoError(t, err)
	srv.OnRequest = func(r *http.Request, code int, nWritten int64, dur time.Duration) {}
	return srv
}

func do(srv *Server, method, uri, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, uri, nil)
	} else {
		r = httptest.NewRequest(method, uri, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestSubmitAndRetrieve(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	w := do(srv, "POST", "/airsense/data", "23.5,41")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Body.String())
	w = do(srv, "POST", "/airsense/data", "23.6,40\n")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(srv, "GET", "/airsense/data", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSuffix(w.Body.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ", 23.5,41"))
	assert.True(t, strings.HasSuffix(lines[1], ", 23.6,40"))

	// other streams are not affected
	w = do(srv, "GET", "/alex/data", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Body.String())
}

func TestTimestampIsTakenAtReceipt(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	before := time.Now().UTC().Truncate(time.Millisecond)
	w := do(srv, "POST", "/airsense/status", "ok")
	after := time.Now().UTC()
	assert.Equal(t, http.StatusOK, w.Code)

	recs, err := store.Records("airsense/status")
	assert.NoError(t, err)
	assert.Len(t, recs, 1)
	ts := recs[0].Timestamp
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}

func TestEmptyPayload(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	w := do(srv, "POST", "/alex/data", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(srv, "GET", "/alex/data", "")
	assert.True(t, strings.HasSuffix(w.Body.String(), "Z, \n"))
}

func TestNotFound(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	tests := []string{
		"GET", "/foo",
		"POST", "/foo",
		"POST", "/airsense",
		"GET", "/airsense/data/",
		"GET", "/AIRSENSE/DATA",
	}
	for i := 0; i < len(tests); i += 2 {
		w := do(srv, tests[i], tests[i+1], "x")
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tests[i], tests[i+1])
	}
	for _, st := range store.AllStats() {
		assert.Equal(t, int64(0), st.Size)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	store := openTestStore(t)
	routes := []Route{
		{StreamID: "airsense/data", SubmitPath: "/in", RetrievePath: "/out"},
	}
	srv := newTestServer(t, store, routes)

	w := do(srv, "PUT", "/in", "x")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))

	w = do(srv, "GET", "/in", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(srv, "POST", "/out", "x")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))

	w = do(srv, "POST", "/in", "x")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(srv, "GET", "/out", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasSuffix(w.Body.String(), ", x\n"))

	w = do(srv, "DELETE", "/ping", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type failingStore struct {
	err error
}

func (s *failingStore) IsKnownStream(streamID string) bool {
	return streamID == "airsense/data"
}

func (s *failingStore) Append(streamID string, payload []byte, capturedAt time.Time) (*streamstore.Record, error) {
	return nil, s.err
}

func (s *failingStore) ReadAll(streamID string) ([]byte, error) {
	return nil, s.err
}

func TestStorageFailure(t *testing.T) {
	store := &failingStore{
		err: &streamstore.StorageError{StreamID: "airsense/data", Op: "write", Err: errors.New("disk full")},
	}
	routes := testRoutes[:1]
	srv := newTestServer(t, store, routes)

	w := do(srv, "POST", "/airsense/data", "23.5,41")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = do(srv, "GET", "/airsense/data", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// no stats provider, so no /api/stats
	w = do(srv, "GET", "/api/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMiscURLS(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	w := do(srv, "GET", "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, greeting, w.Body.String())

	w = do(srv, "GET", "/ping", "")
	assert.Equal(t, "pong", w.Body.String())

	do(srv, "POST", "/alex/data", "hello")
	w = do(srv, "GET", "/api/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var res struct {
		Streams []streamStatsJSON `json:"streams"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &res)
	assert.NoError(t, err)
	assert.Len(t, res.Streams, 3)
	assert.Equal(t, "alex/data", res.Streams[2].ID)
	assert.Equal(t, int64(1), res.Streams[2].Records)
	assert.NotEqual(t, "", res.Streams[2].LastAppend)
	assert.Equal(t, int64(0), res.Streams[0].Records)
}

func TestConcurrentSubmits(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				w := do(srv, "POST", "/airsense/data", "reading")
				assert.Equal(t, http.StatusOK, w.Code)
			}
		}()
	}
	wg.Wait()
	recs, err := store.Records("airsense/data")
	assert.NoError(t, err)
	assert.Len(t, recs, 200)
}

func TestValidateRoutes(t *testing.T) {
	store := openTestStore(t)
	invalid := [][]Route{
		nil,
		{{StreamID: "nope", SubmitPath: "/a", RetrievePath: "/a"}},
		{{StreamID: "alex/data", SubmitPath: "a", RetrievePath: "/a"}},
		{{StreamID: "alex/data", SubmitPath: "/a", RetrievePath: "http://foo/a"}},
		{{StreamID: "alex/data", SubmitPath: "/ping", RetrievePath: "/a"}},
		{
			{StreamID: "alex/data", SubmitPath: "/a", RetrievePath: "/a"},
			{StreamID: "airsense/data", SubmitPath: "/a", RetrievePath: "/b"},
		},
		{
			{StreamID: "alex/data", SubmitPath: "/a", RetrievePath: "/a"},
			{StreamID: "airsense/data", SubmitPath: "/b", RetrievePath: "/a"},
		},
	}
	for i, routes := range invalid {
		err := ValidateRoutes(routes, store)
		assert.Error(t, err, "routes %d", i)
	}
	assert.NoError(t, ValidateRoutes(testRoutes, store))

	srv := newTestServer(t, store, testRoutes)
	var urls []string
	IterURLS(srv.Handlers, func(uri string) {
		urls = append(urls, uri)
	})
	assert.Equal(t, []string{"/airsense/data", "/airsense/status", "/alex/data", "/", "/ping", "/api/stats"}, urls)
}

func TestRequestLogging(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(t, store, testRoutes)
	var codes []int
	var sizes []int64
	srv.OnRequest = func(r *http.Request, code int, nWritten int64, dur time.Duration) {
		codes = append(codes, code)
		sizes = append(sizes, nWritten)
	}
	do(srv, "POST", "/airsense/data", "1")
	do(srv, "GET", "/nope", "")
	do(srv, "GET", "/ping", "")
	assert.Equal(t, []int{200, 404, 200}, codes)
	assert.Equal(t, []int64{0, 0, 4}, sizes)
}
