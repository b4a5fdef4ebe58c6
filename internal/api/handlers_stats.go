package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backend": s.cfg.EnrichBackend,
		"deployments": map[string]string{
			"embedding":   s.cfg.EmbeddingDeployment,
			"description": s.cfg.DescriptionDeployment,
		},
		"stats": s.stats.Snapshot(),
	})
}
