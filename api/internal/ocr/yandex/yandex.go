// Package yandex extracts question text through the Yandex Vision OCR REST
// API with the handwritten recognition model.
package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyhelper/api/internal/canonical"
	"studyhelper/api/internal/util"
)

const recognizeURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

type Engine struct {
	iamc     *IamClient
	folderID string
	langs    []string
	httpc    *http.Client
}

func New(oauthToken, folderID string) *Engine {
	return &Engine{
		iamc:     NewIamClient(oauthToken),
		folderID: folderID,
		langs:    []string{"zh", "en"},
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "yandex" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`
	LanguageCodes []string `json:"languageCodes,omitempty"`
	Model         string   `json:"model,omitempty"`
}

type textAnnotation struct {
	FullText string `json:"fullText,omitempty"`
	Blocks   []struct {
		Lines []struct {
			Text string `json:"text,omitempty"`
		} `json:"lines,omitempty"`
	} `json:"blocks,omitempty"`
}

type response struct {
	Result *struct {
		TextAnnotation *textAnnotation `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

// Extract OCRs the photo and returns its text lines. A page with no
// recognizable text yields the failure sentinel, not an empty slice.
func (e *Engine) Extract(ctx context.Context, image []byte) ([]string, error) {
	iamToken, err := e.iamc.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := request{
		Content:       base64.StdEncoding.EncodeToString(image),
		MimeType:      util.SniffMimeForOCR(image),
		LanguageCodes: e.langs,
		Model:         "handwritten",
	}
	payload, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", recognizeURL, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iamToken)
	req.Header.Set("x-folder-id", e.folderID)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// one retry with a fresh IAM token
		e.iamc.Invalidate()
		if iamToken, err = e.iamc.Token(ctx); err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+iamToken)
		resp, err = e.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, string(x))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return linesOf(&out), nil
}

func linesOf(out *response) []string {
	if out.Result == nil || out.Result.TextAnnotation == nil {
		return []string{canonical.SentinelFailed}
	}
	ta := out.Result.TextAnnotation
	var lines []string
	if t := strings.TrimSpace(ta.FullText); t != "" {
		for _, l := range strings.Split(t, "\n") {
			if s := strings.TrimSpace(l); s != "" {
				lines = append(lines, s)
			}
		}
	} else {
		for _, b := range ta.Blocks {
			for _, l := range b.Lines {
				if s := strings.TrimSpace(l.Text); s != "" {
					lines = append(lines, s)
				}
			}
		}
	}
	if len(lines) == 0 {
		return []string{canonical.SentinelFailed}
	}
	return lines
}
