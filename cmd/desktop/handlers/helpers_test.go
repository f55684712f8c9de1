package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/resaletally/internal/app"
	"github.com/kimhsiao/resaletally/internal/config"
	"github.com/kimhsiao/resaletally/internal/sync/remote"
)

type testServer struct {
	app    *app.App
	remote *remote.MemoryStore
	router chi.Router
}

// newTestServer builds an app over a fresh data dir and an in-memory remote.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Sync.RetryBaseDelay = time.Millisecond
	cfg.Sync.MaxRetries = 1

	rs := remote.NewMemoryStore()
	a, err := app.NewWithRemote(cfg, rs)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(time.Second) })

	r := chi.NewRouter()
	Mount(r, a)
	return &testServer{app: a, remote: rs, router: r}
}

// do sends a request with an optional JSON body and returns the recorder.
func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("Status = %d, want %d (body: %s)", rr.Code, want, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body ErrorBody
	decode(t, rr, &body)
	if string(body.Error.Code) != want {
		t.Errorf("Error code = %q, want %q", body.Error.Code, want)
	}
}

