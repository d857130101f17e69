// Package gemini extracts question text with a Gemini vision model through
// the official SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studyhelper/api/internal/canonical"
	"studyhelper/api/internal/util"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string { return "gemini" }

const transcribeInstruction = `你是一个OCR转写模块。任务：把照片里的题目文字逐字转写出来。
要求：
1) 逐字转写，保持原有行的顺序，每行一条，不要合并或拆分行。
2) 不要解题、不要补全、不要纠正错别字或算式错误。
3) 照片里没有可读文字时，只输出一行：` + canonical.SentinelFailed + `
只输出转写文字，不要任何解释。`

// Extract transcribes the photo verbatim, one extracted line per element.
func (e *Engine) Extract(ctx context.Context, image []byte) ([]string, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(transcribeInstruction)},
	}

	parts := []genai.Part{
		genai.Text("转写这张照片里的题目文字。"),
		&genai.Blob{MIMEType: util.SniffMimeHTTP(image), Data: image},
	}

	// transient 5xx happen; retry a few times before giving up
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if strings.TrimSpace(txt) == "" {
			return []string{canonical.SentinelFailed}, nil
		}
		var lines []string
		for _, l := range strings.Split(txt, "\n") {
			if s := strings.TrimSpace(l); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) == 0 {
			return []string{canonical.SentinelFailed}, nil
		}
		return lines, nil
	}
	return nil, fmt.Errorf("gemini extract: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}

func ptrFloat32(f float32) *float32 { return &f }
