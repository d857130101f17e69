// Package handle exposes the resolution pipeline and the history stores over
// HTTP.
package handle

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"studyhelper/api/internal/pipeline"
	"studyhelper/api/internal/store"
)

type Handle struct {
	resolver    *pipeline.Resolver
	questions   *store.QuestionRepo
	submissions *store.SubmissionRepo
	mistakes    *store.MistakeRepo
	log         *zap.Logger
}

func New(r *pipeline.Resolver, log *zap.Logger) *Handle {
	return &Handle{
		resolver:    r,
		questions:   r.Questions,
		submissions: r.Submissions,
		mistakes:    r.Mistakes,
		log:         log,
	}
}

// Register mounts every route on the given mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/analyze", h.Analyze)
	mux.HandleFunc("/v1/submissions", h.Submissions)
	mux.HandleFunc("/v1/mistakes", h.Mistakes)
	mux.HandleFunc("/v1/maintenance/sweep", h.Sweep)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
