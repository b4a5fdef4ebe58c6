package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/accioltd/mdchunk/internal/pipeline"
)

// handleListDocuments lists the meta node of every stored document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	children, err := s.orchestrator.PathstoreClient().ListChildren(r.Context(), "documents", 200)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	docs := []map[string]any{}
	for _, child := range children {
		if !strings.HasSuffix(child.Key, ".meta") {
			continue
		}
		docs = append(docs, map[string]any{
			"key":   child.Key,
			"value": child.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleGetDocument returns a document's meta node and its chunk keys.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	ps := s.orchestrator.PathstoreClient()
	prefix := pipeline.DocumentPrefix(docID)

	meta, err := ps.GetNode(r.Context(), prefix+"/meta")
	if err != nil {
		jsonError(w, "failed to read document: "+err.Error(), http.StatusBadGateway)
		return
	}
	if meta == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	chunks, err := ps.ListChildren(r.Context(), prefix+"/chunks", 10000)
	if err != nil {
		jsonError(w, "failed to list chunks: "+err.Error(), http.StatusBadGateway)
		return
	}
	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, c.Key)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": docID,
		"meta":   meta.Value,
		"chunks": keys,
	})
}

// handleDeleteDocument deletes a document's meta node and all its chunks.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	ps := s.orchestrator.PathstoreClient()
	prefix := pipeline.DocumentPrefix(docID)

	chunks, err := ps.ListChildren(r.Context(), prefix+"/chunks", 10000)
	if err != nil {
		jsonError(w, "failed to list chunks: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := ps.DeleteNode(r.Context(), prefix, true); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":         docID,
		"chunks_deleted": len(chunks),
	})
}
