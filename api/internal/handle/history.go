package handle

import (
	"net/http"
	"strings"
	"time"

	"studyhelper/api/internal/store"
)

type submissionOut struct {
	SubmissionID  string    `json:"submission_id"`
	QuestionID    string    `json:"question_id"`
	SubmittedText string    `json:"submitted_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// Submissions returns one user's ledger, newest first. ?question_id narrows
// it to a single question.
func (h *Handle) Submissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var (
		subs []store.Submission
		err  error
	)
	if qid := strings.TrimSpace(r.URL.Query().Get("question_id")); qid != "" {
		subs, err = h.submissions.ByUserAndQuestion(r.Context(), userID, qid)
	} else {
		subs, err = h.submissions.ByUser(r.Context(), userID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query submissions: "+err.Error())
		return
	}

	out := make([]submissionOut, 0, len(subs))
	for _, s := range subs {
		out = append(out, submissionOut{
			SubmissionID:  s.ID,
			QuestionID:    s.QuestionID,
			SubmittedText: s.SubmittedText,
			CreatedAt:     s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": out})
}

type mistakeOut struct {
	MistakeID      string    `json:"mistake_id"`
	QuestionID     string    `json:"question_id"`
	QuestionText   string    `json:"question_text"`
	KnowledgePoint string    `json:"knowledge_point"`
	ErrorAnalysis  string    `json:"error_analysis"`
	ReviewStatus   string    `json:"review_status"`
	AddedAt        time.Time `json:"added_at"`
}

// Mistakes returns one user's mistake register, newest first.
func (h *Handle) Mistakes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	mistakes, err := h.mistakes.ByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query mistakes: "+err.Error())
		return
	}

	out := make([]mistakeOut, 0, len(mistakes))
	for _, m := range mistakes {
		out = append(out, mistakeOut{
			MistakeID:      m.ID,
			QuestionID:     m.QuestionID,
			QuestionText:   m.QuestionText,
			KnowledgePoint: m.KnowledgePoint,
			ErrorAnalysis:  m.ErrorAnalysis,
			ReviewStatus:   m.ReviewStatus,
			AddedAt:        m.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"mistakes": out})
}
