package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/userdb/internal/api/config"
	"github.com/dmitrijs2005/userdb/internal/logging"
	"github.com/dmitrijs2005/userdb/internal/server/query"
	"github.com/dmitrijs2005/userdb/internal/server/registry"
	"github.com/dmitrijs2005/userdb/internal/server/socket"
)

func startStore(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	logger := logging.NewJSONLogger()

	reg, err := registry.Open(context.Background(), filepath.Join(dir, "shards"), []string{"a0"}, logger)
	require.NoError(t, err)

	sockPath := filepath.Join(dir, "userdb.sock")
	srv := socket.NewServer(sockPath, logger, reg, query.NewEngine(reg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		reg.Close()
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return sockPath
}

func testRouter(t *testing.T, sockPath string) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		ListenAddr:    ":0",
		SocketPath:    sockPath,
		AdminLogin:    "admin",
		AdminPassword: "secret",
	}
	return NewRouter(cfg, logging.NewJSONLogger())
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.SetBasicAuth("admin", "secret")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createBody() map[string]string {
	return map[string]string{
		"username":      "alice",
		"password_hash": "h",
		"ip_reg":        "127.0.0.1",
		"last_logged":   "2025-06-16T12:00:00",
		"last_ip":       "127.0.0.1",
	}
}

func TestAuthRequired(t *testing.T) {
	r := testRouter(t, startStore(t))

	w := doJSON(t, r, http.MethodPost, "/records", createBody(), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecordLifecycle(t *testing.T) {
	r := testRouter(t, startStore(t))

	w := doJSON(t, r, http.MethodPost, "/records", createBody(), true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Ref string `json:"ref"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "a0:0", created.Ref)

	w = doJSON(t, r, http.MethodGet, "/records/"+created.Ref, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "alice", rec["username"])

	w = doJSON(t, r, http.MethodGet, "/records/"+created.Ref+"?fields=username,last_ip", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	rec = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Len(t, rec, 2)

	w = doJSON(t, r, http.MethodPut, "/records/"+created.Ref, map[string]string{"last_ip": "192.168.0.2"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	rec = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "192.168.0.2", rec["last_ip"])
	assert.Equal(t, "alice", rec["username"])

	w = doJSON(t, r, http.MethodGet, "/find?field=username&value=alice", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Results []struct {
			Ref string `json:"ref"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found.Results, 1)
	assert.Equal(t, created.Ref, found.Results[0].Ref)

	w = doJSON(t, r, http.MethodDelete, "/records/"+created.Ref, nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/records/"+created.Ref, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	r := testRouter(t, startStore(t))

	w := doJSON(t, r, http.MethodGet, "/records/not-a-ref", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/records/a0:99", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/find?field=email&value=x", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/find?value=x", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/records", map[string]string{"username": ""}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreUnavailable(t *testing.T) {
	r := testRouter(t, "/nonexistent/userdb.sock")

	w := doJSON(t, r, http.MethodGet, "/records/a0:0", nil, true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
