package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/medchat-go/internal/audit"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/rag"
)

// maxRebuildBytes bounds an inline chunk upload on POST /api/rebuild.
const maxRebuildBytes = 64 << 20

// handleStatus handles GET /api/status: the published index and the
// effective retrieval settings.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	set := s.pipeline.Settings()
	writeJSON(w, r, http.StatusOK, statusResponse{
		RAG: s.pipeline.Status(),
		Settings: statusSettings{
			UseRAG:         set.UseRAG,
			TopK:           set.TopK,
			MaxContext:     set.MaxContext,
			ScoreThreshold: set.ScoreThreshold,
		},
	})
}

// handleRebuild handles POST /api/rebuild. An empty body re-embeds the
// persisted chunks; {"chunks": [...]} replaces them.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req rebuildRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRebuildBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RebuildTimeout)
	defer cancel()

	start := time.Now()
	var chunks []rag.Chunk
	if len(req.Chunks) > 0 {
		chunks = req.Chunks
	}
	ok, err := s.pipeline.RebuildIndex(ctx, chunks)
	if err != nil {
		log.Error("rebuild failed", slog.Any("error", err))
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrNoChunks) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err.Error())
		return
	}

	st := s.pipeline.Status()
	audit.LogRebuild(log, audit.Rebuild{
		Origin:    "http",
		Backend:   st.Backend,
		Chunks:    st.ChunksCount,
		Dimension: st.Dimension,
	})
	log.Debug("rebuild request finished", slog.Duration("elapsed", time.Since(start)))
	writeJSON(w, r, http.StatusOK, rebuildResponse{Rebuilt: ok, Status: st})
}
