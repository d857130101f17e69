package handle

import (
	"net/http"

	"go.uber.org/zap"
)

// Sweep removes invalid cached questions and the index entries left pointing
// at nothing. Meant for an operator or a cron, not end users.
func (h *Handle) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	res, err := h.questions.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep: "+err.Error())
		return
	}
	h.log.Info("sweep finished",
		zap.Int("questions_removed", res.QuestionsRemoved),
		zap.Int("fingerprints_removed", res.FingerprintsRemoved),
	)
	writeJSON(w, http.StatusOK, res)
}
