package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"studyhelper/api/internal/analysis"
	"studyhelper/api/internal/pipeline"
	"studyhelper/api/internal/util"
)

type analyzeReq struct {
	UserID   string `json:"user_id"`
	Image    string `json:"image"` // base64, raw or data: URL
	ForceNew bool   `json:"force_new"`
}

type analyzeResp struct {
	QuestionID   string            `json:"question_id"`
	OCRText      string            `json:"ocr_text"`
	Analysis     analysis.Analysis `json:"analysis"`
	CacheStatus  string            `json:"cache_status"`
	MistakeAdded bool              `json:"mistake_added"`
}

func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req analyzeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	img, _, err := util.DecodeBase64MaybeDataURL(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is not valid base64: "+err.Error())
		return
	}

	deadline := 180 * time.Second
	if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	res, err := h.resolver.Resolve(ctx, pipeline.Request{
		UserID:   req.UserID,
		Image:    img,
		ForceNew: req.ForceNew,
	})
	if err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, pipeline.ErrInput):
			code = http.StatusBadRequest
		case errors.Is(err, pipeline.ErrPersistence):
			code = http.StatusInternalServerError
		case errors.Is(err, pipeline.ErrAnalysisFormat):
			code = http.StatusBadGateway
		}
		h.log.Warn("analyze failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResp{
		QuestionID:   res.QuestionID,
		OCRText:      res.OCRText,
		Analysis:     res.Analysis,
		CacheStatus:  res.CacheStatus,
		MistakeAdded: res.MistakeAdded,
	})
}
