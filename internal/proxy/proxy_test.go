package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
	"github.com/edulms/api-gateway/internal/models"
)

func newEndpoint(t *testing.T, rawURL string, method models.Method) models.ServiceEndpoint {
	t.Helper()
	ep, err := models.NewServiceEndpoint(rawURL, method)
	require.NoError(t, err)
	return ep
}

func TestForwardPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"42","name":"Intro to Go"}`))
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/courses/42", nil)
	rec := httptest.NewRecorder()

	status := f.Forward(rec, r, newEndpoint(t, downstream.URL+"/courses/42", models.MethodGet), Identity{UserID: "user-1"})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"42","name":"Intro to Go"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestForwardHeaderHygiene(t *testing.T) {
	t.Parallel()

	var seen http.Header
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	r.RemoteAddr = "203.0.113.9:50123"
	r.Host = "gateway.example.com"
	r.Header.Set("Connection", "keep-alive, X-Internal-Debug")
	r.Header.Set("Keep-Alive", "timeout=5")
	r.Header.Set("X-Internal-Debug", "1")
	r.Header.Set("Proxy-Authorization", "Basic abc")
	r.Header.Set("Transfer-Encoding", "chunked")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Authorization", "Bearer token")

	f.Forward(httptest.NewRecorder(), r, newEndpoint(t, downstream.URL+"/courses", models.MethodGet), Identity{UserID: "user-7", Role: "student"})

	// Hop-by-hop headers and Connection-nominated headers never cross.
	assert.Empty(t, seen.Get("Keep-Alive"))
	assert.Empty(t, seen.Get("Proxy-Authorization"))
	assert.Empty(t, seen.Get("Upgrade"))
	assert.Empty(t, seen.Get("X-Internal-Debug"))

	// End-to-end headers survive.
	assert.Equal(t, "application/json", seen.Get("Accept"))
	assert.Equal(t, "Bearer token", seen.Get("Authorization"))

	// Forwarding headers are added.
	assert.Equal(t, "203.0.113.9", seen.Get("X-Forwarded-For"))
	assert.Equal(t, "http", seen.Get("X-Forwarded-Proto"))
	assert.Equal(t, "gateway.example.com", seen.Get("X-Forwarded-Host"))
	assert.Equal(t, "user-7", seen.Get("X-User-Id"))
	assert.Equal(t, "student", seen.Get("X-User-Role"))
}

func TestForwardAppendsQueryString(t *testing.T) {
	t.Parallel()

	var gotQuery string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/api/v1/courses?page=2&limit=10", nil)

	f.Forward(httptest.NewRecorder(), r, newEndpoint(t, downstream.URL+"/courses", models.MethodGet), Identity{})
	assert.Equal(t, "page=2&limit=10", gotQuery)
}

func TestForwardSendsBody(t *testing.T) {
	t.Parallel()

	var gotBody string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())
	r := httptest.NewRequest(http.MethodPost, "/api/v1/courses", strings.NewReader(`{"name":"Go 101"}`))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	status := f.Forward(rec, r, newEndpoint(t, downstream.URL+"/courses", models.MethodPost), Identity{UserID: "user-1"})

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, `{"name":"Go 101"}`, gotBody)
}

func TestForwardTranslatesDownstreamError(t *testing.T) {
	t.Parallel()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Validation failed","errors":["name is required"]}`))
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/courses", nil)

	status := f.Forward(rec, r, newEndpoint(t, downstream.URL+"/courses", models.MethodPost), Identity{})

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Validation failed", body.Message)
	assert.Equal(t, []string{"name is required"}, body.Errors)
}

func TestForwardUnparseableErrorBody(t *testing.T) {
	t.Parallel()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream exploded</html>"))
	}))
	defer downstream.Close()

	f := NewForwarder(5*time.Second, zap.NewNop())
	rec := httptest.NewRecorder()

	status := f.Forward(rec, httptest.NewRequest(http.MethodGet, "/x", nil),
		newEndpoint(t, downstream.URL, models.MethodGet), Identity{})

	assert.Equal(t, http.StatusBadGateway, status)

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Service error", body.Message)
}

func TestForwardConnectionFailure(t *testing.T) {
	t.Parallel()

	// A server that is already closed refuses connections.
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downstream.Close()

	f := NewForwarder(time.Second, zap.NewNop())
	rec := httptest.NewRecorder()

	status := f.Forward(rec, httptest.NewRequest(http.MethodGet, "/x", nil),
		newEndpoint(t, downstream.URL, models.MethodGet), Identity{})

	assert.Equal(t, http.StatusServiceUnavailable, status)

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Service unavailable", body.Message)
}
