package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accioltd/mdchunk/internal/config"
	"github.com/accioltd/mdchunk/internal/enrich"
	"github.com/accioltd/mdchunk/internal/pathstore"
	"github.com/accioltd/mdchunk/internal/pipeline"
)

const testKey = "test-key"

type stubService struct{}

func (stubService) Embed(context.Context, string) ([]float32, error) { return []float32{0.25, 1}, nil }
func (stubService) Describe(context.Context, string) (string, error) { return "A chart.", nil }
func (stubService) Close()                                           {}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.APIKey = testKey
	cfg.WorkerCount = 1
	cfg.MaxQueueSize = 4
	cfg.EnrichConcurrency = 2
	cfg.MaxUploadBytes = 1 << 20
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server; when start is false no worker drains the
// queue and jobs stay queued.
func newTestServer(t *testing.T, start bool, ps *pathstore.Client, stats *enrich.Stats) *Server {
	t.Helper()
	cfg := testConfig()
	orch, err := pipeline.NewOrchestrator(cfg, stubService{}, ps, discardLogger())
	require.NoError(t, err)
	if start {
		orch.Start(context.Background())
	}
	t.Cleanup(orch.Stop)
	return NewServer(orch, stats, discardLogger(), cfg)
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chunk", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func authed(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, false, nil, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authorization", decode(t, rec)["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid api key", decode(t, rec)["error"])
}

func TestChunkLifecycle(t *testing.T) {
	s := newTestServer(t, true, nil, nil)
	doc := "# Guide\n\n" + strings.Repeat("x", 900) + "\n\n## Setup\n\n" + strings.Repeat("y", 900) + "\n"

	rec := serve(s, uploadRequest(t, "guide.md", doc, map[string]string{"min_chars": "100"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", resp["status"])
	assert.True(t, strings.HasPrefix(resp["doc_id"].(string), "guide-"))

	require.Eventually(t, func() bool {
		rec := serve(s, authed(http.MethodGet, "/api/chunk/"+jobID+"/status"))
		var snap pipeline.JobSnapshot
		return json.Unmarshal(rec.Body.Bytes(), &snap) == nil && snap.Status == pipeline.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	status := decode(t, serve(s, authed(http.MethodGet, "/api/chunk/"+jobID+"/status")))
	progress := status["progress"].(map[string]any)
	assert.EqualValues(t, 2, progress["total_chunks"])
	assert.EqualValues(t, 2, progress["chunks_embedded"])
	assert.EqualValues(t, 100, status["options"].(map[string]any)["min_chars"])

	rec = serve(s, authed(http.MethodGet, "/api/chunk/"+jobID+"/records"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "[# 1]\nmeta.file: guide.md\nmeta.heading_path: Guide\n")
	assert.Contains(t, body, "meta.heading_path: Guide > Setup\n")
	assert.Contains(t, body, "meta.embedding: [0.25,1]\n")
}

func TestChunkRecordsNotReady(t *testing.T) {
	s := newTestServer(t, false, nil, nil)

	rec := serve(s, uploadRequest(t, "notes.txt", "hello", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode(t, rec)["job_id"].(string)

	rec = serve(s, authed(http.MethodGet, "/api/chunk/"+jobID+"/records"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "queued", decode(t, rec)["status"])
}

func TestChunkValidation(t *testing.T) {
	s := newTestServer(t, false, nil, nil)

	cases := []struct {
		name     string
		filename string
		fields   map[string]string
		code     int
	}{
		{"unsupported extension", "deck.pptx", nil, http.StatusBadRequest},
		{"bad min_chars", "a.md", map[string]string{"min_chars": "-3"}, http.StatusBadRequest},
		{"bad describe flag", "a.md", map[string]string{"describe_images": "maybe"}, http.StatusBadRequest},
		{"describe flag accepted", "a.html", map[string]string{"describe_images": "true"}, http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, tc.filename, "# x\n", tc.fields))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestChunkQueueFull(t *testing.T) {
	s := newTestServer(t, false, nil, nil)
	for range testConfig().MaxQueueSize {
		require.Equal(t, http.StatusAccepted, serve(s, uploadRequest(t, "a.md", "# a\n", nil)).Code)
	}
	rec := serve(s, uploadRequest(t, "a.md", "# a\n", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestUnknownJob(t *testing.T) {
	s := newTestServer(t, false, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(s, authed(http.MethodGet, "/api/chunk/nope/status")).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, authed(http.MethodGet, "/api/chunk/nope/records")).Code)
}

func TestLLMStats(t *testing.T) {
	s := newTestServer(t, false, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, authed(http.MethodGet, "/api/stats/llm")).Code)

	stats := enrich.NewStats(time.Hour)
	stats.Record(enrich.OpEmbed, 20*time.Millisecond, nil)
	s = newTestServer(t, false, nil, stats)

	rec := serve(s, authed(http.MethodGet, "/api/stats/llm"))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "http", out["backend"])
	assert.Equal(t, "text-embedding-3-small", out["deployments"].(map[string]any)["embedding"])
	assert.Contains(t, out["stats"].(map[string]any), "embed")
}

func TestDocumentsRoutesNeedPathstore(t *testing.T) {
	s := newTestServer(t, false, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(s, authed(http.MethodGet, "/api/documents")).Code)
}

func TestDocuments(t *testing.T) {
	var deleted string
	ps := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/kv/documents/*":
			_, _ = io.WriteString(w, `{"nodes":[
				{"key_path":"documents.guide-1.meta","value":{"filename":"guide.md"}},
				{"key_path":"documents.guide-1.chunks.0000","value":{}}]}`)
		case r.Method == http.MethodGet && r.URL.Path == "/kv/documents/guide-1/meta":
			_, _ = io.WriteString(w, `{"key_path":"documents.guide-1.meta","value":{"filename":"guide.md"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/kv/documents/guide-1/chunks/*":
			_, _ = io.WriteString(w, `{"nodes":[{"key_path":"documents.guide-1.chunks.0000"},{"key_path":"documents.guide-1.chunks.0001"}]}`)
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path + "?" + r.URL.RawQuery
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ps.Close()

	s := newTestServer(t, false, pathstore.NewClient(ps.URL, "k"), nil)

	rec := serve(s, authed(http.MethodGet, "/api/documents"))
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode(t, rec)["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "documents.guide-1.meta", docs[0].(map[string]any)["key"])

	rec = serve(s, authed(http.MethodGet, "/api/documents/guide-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Len(t, doc["chunks"], 2)
	assert.Equal(t, "guide.md", doc["meta"].(map[string]any)["filename"])

	assert.Equal(t, http.StatusNotFound, serve(s, authed(http.MethodGet, "/api/documents/other")).Code)

	rec = serve(s, authed(http.MethodDelete, "/api/documents/guide-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["chunks_deleted"])
	assert.Equal(t, "/kv/documents/guide-1?children=true", deleted)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "report.pdf", sanitizeFilename(`C:\Users\x\report.pdf`))
	assert.Equal(t, "a_b.md", sanitizeFilename("a..b.md"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
}
