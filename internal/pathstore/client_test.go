package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutNode(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var body NodeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	err := c.PutNode(context.Background(), "documents/d1/chunks/0000", NodeRequest{
		Value:      map[string]any{"text": "hello"},
		MemoryType: "semantic",
		Salience:   0.5,
		Source:     "mdchunk:d1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/kv/documents/d1/chunks/0000", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "semantic", body.MemoryType)
	assert.Equal(t, "mdchunk:d1", body.Source)
	assert.Equal(t, map[string]any{"text": "hello"}, body.Value)
}

func TestPutNode_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").PutNode(context.Background(), "a/b", NodeRequest{Value: 1})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "quota exceeded", se.Body)
	assert.Contains(t, err.Error(), "put node a/b")
}

func TestGetNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/kv/missing" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"key_path": "documents.d1.meta",
			"value":    map[string]any{"filename": "a.md"},
		})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k")

	node, err := c.GetNode(context.Background(), "documents/d1/meta")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "documents.d1.meta", node.Key)
	assert.Equal(t, map[string]any{"filename": "a.md"}, node.Value)

	node, err = c.GetNode(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestListChildren(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"nodes":[{"key_path":"documents.d1.meta","value":{"filename":"a.md"}},{"key_path":"documents.d2.meta","value":null}]}`))
	}))
	defer srv.Close()

	nodes, err := NewClient(srv.URL, "k").ListChildren(context.Background(), "documents", 25)
	require.NoError(t, err)
	assert.Equal(t, "/kv/documents/*", gotPath)
	assert.Equal(t, "limit=25", gotQuery)
	require.Len(t, nodes, 2)
	assert.Equal(t, "documents.d2.meta", nodes[1].Key)
}

func TestDeleteNode(t *testing.T) {
	var gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k")

	require.NoError(t, c.DeleteNode(context.Background(), "documents/d1", true))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "children=true", gotQuery)

	require.NoError(t, c.DeleteNode(context.Background(), "documents/d1/meta", false))
	assert.Empty(t, gotQuery)
}

func TestPutLink(t *testing.T) {
	var got LinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/links", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").PutLink(context.Background(), LinkRequest{From: "a", To: "b", Weight: 1, Summary: "next"})
	require.NoError(t, err)
	assert.Equal(t, LinkRequest{From: "a", To: "b", Weight: 1, Summary: "next"}, got)
}
