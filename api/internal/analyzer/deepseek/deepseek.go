// Package deepseek runs pedagogical question analysis through the DeepSeek
// chat-completions API (OpenAI-compatible).
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.deepseek.com/v1"

type Client struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(apiKey, model string) *Client {
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		BaseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "deepseek" }

const systemPrompt = `你是一位顶级的AI老师，你的任务是分析学生提交的题目，并严格按照要求的JSON格式输出。`

const promptTemplate = `请分析学生提交的题目。要求：

1. **审题**: 仔细阅读题目内容。
2. **判断学科**: 判断题目属于哪个学科（例如：数学、语文、英语等）。
3. **判断对错**: 判断题目中的计算或解答是否正确。
4. **深入分析**:
   - 如果题目是 **错误** 的，请明确指出错误所在，解释错误原因，并给出正确的答案和详细的解题步骤。
   - 如果题目是 **正确** 的，请表扬学生，并可以提供另一种解法或相关的知识点扩展。
5. **总结知识点**: 总结这道题所考察的核心知识点。
6. **指出易错点**: 提醒学生在这类问题中常见的错误或需要注意的地方。

**输出格式要求**:
请严格按照以下JSON格式返回你的分析结果，不要添加任何额外的解释或说明文字。所有字段都必须包含，如果某个字段不适用，请返回空字符串 ""。

` + "```json" + `
{
  "subject": "数学",
  "is_correct": false,
  "error_analysis": "计算错误。1加1的结果应该是2，而不是3。",
  "correct_answer": "1 + 1 = 2",
  "solution_steps": "这是一个基础的加法运算。将1和1相加，得到结果2。",
  "knowledge_point": "10以内的加法",
  "common_mistakes": "在初学加法时，可能会因为数数不准或对加法概念理解不清而出错。"
}
` + "```" + `

**题目内容:**
` + "```" + `
%s
` + "```" + `
`

// Analyze sends the question text and returns the raw model response; the
// payload may still be fence-wrapped, parsing is the caller's job.
func (c *Client) Analyze(ctx context.Context, questionText string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("DEEPSEEK_API_KEY is empty")
	}

	body := map[string]any{
		"model": c.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": systemPrompt},
			map[string]any{"role": "user", "content": fmt.Sprintf(promptTemplate, questionText)},
		},
		// low randomness keeps the JSON shape stable
		"temperature": 0.2,
		"max_tokens":  1000,
	}
	payload, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepseek %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("deepseek: empty response")
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}
