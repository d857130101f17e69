// Package telegram is the chat front-end: photos in, analyzed questions out.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studyhelper/api/internal/ocr"
	"studyhelper/api/internal/pipeline"
	"studyhelper/api/internal/store"
)

type Router struct {
	Bot      *tgbotapi.BotAPI
	Resolver *pipeline.Resolver
	Mistakes *store.MistakeRepo
	Engines  *ocr.Manager
	Log      *zap.Logger

	// Named engines /engine can switch between; nil means unavailable.
	Yandex ocr.Engine
	Gemini ocr.Engine

	// chats whose next photo skips the cache, set by /new
	forceNew sync.Map
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	cid := upd.Message.Chat.ID

	if upd.Message.IsCommand() {
		r.handleCommand(upd)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if strings.TrimSpace(upd.Message.Text) != "" {
		r.send(cid, "请直接发送题目照片，我来帮你分析。输入 /start 查看用法。")
	}
}

func (r *Router) handleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "你好！发送题目照片，我会识别并分析这道题。\n命令：\n/mistakes — 查看错题本\n/new — 下一张照片强制重新分析\n/engine — 切换识别引擎\n/health — 检查服务状态")
	case "health":
		r.send(cid, "✅ OK")
	case "new":
		r.forceNew.Store(cid, true)
		r.send(cid, "好的，下一张照片会跳过缓存，重新分析。")
	case "mistakes":
		r.sendMistakes(cid)
	case "engine":
		r.handleEngineCommand(cid, upd.Message.Text)
	default:
		r.send(cid, "未知命令，输入 /start 查看用法。")
	}
}

// handleEngineCommand switches the per-chat OCR engine.
// Formats: /engine, /engine yandex, /engine gemini
func (r *Router) handleEngineCommand(chatID int64, cmd string) {
	args := strings.Fields(strings.TrimSpace(strings.TrimPrefix(cmd, "/engine")))
	if len(args) == 0 {
		cur := r.Engines.Get(chatID).Name()
		r.send(chatID, "当前识别引擎: "+cur+"\n用法:\n/engine yandex\n/engine gemini")
		return
	}
	switch strings.ToLower(args[0]) {
	case "yandex":
		if r.Yandex == nil {
			r.send(chatID, "❌ Yandex 引擎未配置。")
			return
		}
		r.Engines.Set(chatID, r.Yandex)
		r.send(chatID, "✅ 识别引擎: yandex")
	case "gemini":
		if r.Gemini == nil {
			r.send(chatID, "❌ Gemini 引擎未配置。")
			return
		}
		r.Engines.Set(chatID, r.Gemini)
		r.send(chatID, "✅ 识别引擎: gemini")
	default:
		r.send(chatID, "未知引擎，可选: yandex | gemini")
	}
}

func (r *Router) sendMistakes(chatID int64) {
	mistakes, err := r.Mistakes.ByUser(context.Background(), userIDOf(chatID))
	if err != nil {
		r.Log.Warn("mistake query failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.send(chatID, "查询错题本失败，请稍后再试。")
		return
	}
	if len(mistakes) == 0 {
		r.send(chatID, "错题本是空的，继续加油！🎉")
		return
	}
	const maxShown = 10
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📖 错题本（共 %d 题，显示最近 %d 题）\n", len(mistakes), min(maxShown, len(mistakes))))
	for i, m := range mistakes {
		if i == maxShown {
			break
		}
		b.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, clip(m.QuestionText, 80)))
		if m.KnowledgePoint != "" {
			b.WriteString("   知识点: " + m.KnowledgePoint + "\n")
		}
	}
	r.send(chatID, b.String())
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, _ = r.Bot.Send(msg)
}

// userIDOf maps a chat to the stable user identifier the stores key on.
func userIDOf(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
