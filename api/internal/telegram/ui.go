package telegram

import (
	"strings"

	"studyhelper/api/internal/pipeline"
)

// formatResolution renders one analyzed question as a chat reply.
func formatResolution(res pipeline.Resolution) string {
	a := res.Analysis
	var b strings.Builder

	b.WriteString("📝 识别到的题目:\n```\n")
	b.WriteString(clip(res.OCRText, 600))
	b.WriteString("\n```\n")

	if a.Subject != "" {
		b.WriteString("\n📚 学科: " + esc(a.Subject) + "\n")
	}
	switch {
	case a.IsCorrect == nil:
		// no verdict, skip the line entirely
	case *a.IsCorrect:
		b.WriteString("\n✅ 答案正确，做得好！\n")
	default:
		b.WriteString("\n❌ 答案有误。\n")
		if a.ErrorAnalysis != "" {
			b.WriteString("\n🔍 错误分析:\n" + esc(a.ErrorAnalysis) + "\n")
		}
		if a.CorrectAnswer != "" {
			b.WriteString("\n✔️ 正确答案: " + esc(a.CorrectAnswer) + "\n")
		}
	}
	if a.SolutionSteps != "" {
		b.WriteString("\n💡 解题步骤:\n" + esc(a.SolutionSteps) + "\n")
	}
	if a.KnowledgePoint != "" {
		b.WriteString("\n🎯 知识点: " + esc(a.KnowledgePoint) + "\n")
	}
	if a.CommonMistakes != "" {
		b.WriteString("\n⚠️ 易错点: " + esc(a.CommonMistakes) + "\n")
	}

	switch res.CacheStatus {
	case pipeline.StatusPhashHit, pipeline.StatusTextHashHit:
		b.WriteString("\n（这道题之前分析过，以上是缓存的结果。发送 /new 可强制重新分析。）")
	}
	if res.MistakeAdded {
		b.WriteString("\n已加入错题本，发送 /mistakes 查看。")
	}
	return b.String()
}

// esc neutralizes markdown control characters in model output.
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
