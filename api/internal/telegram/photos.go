package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studyhelper/api/internal/pipeline"
)

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1] // largest size last
	file, err := r.Bot.GetFile(tgbotapi.FileConfig{FileID: ph.FileID})
	if err != nil {
		r.Log.Warn("get file failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "下载照片失败，请重新发送。")
		return
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", r.Bot.Token, file.FilePath)
	img, err := download(url)
	if err != nil {
		r.Log.Warn("download failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "下载照片失败，请重新发送。")
		return
	}

	r.send(cid, "收到照片，正在识别分析，请稍等…")

	forceNew := false
	if _, ok := r.forceNew.LoadAndDelete(cid); ok {
		forceNew = true
	}

	res, err := r.Resolver.Resolve(context.Background(), pipeline.Request{
		UserID:   userIDOf(cid),
		Image:    img,
		ImageRef: ph.FileID,
		ForceNew: forceNew,
		Engine:   r.Engines.Get(cid),
	})
	if err != nil {
		r.Log.Warn("resolve failed", zap.Int64("chat_id", cid), zap.Error(err))
		switch {
		case errors.Is(err, pipeline.ErrInput):
			r.send(cid, "文字识别失败或图片为空，请确保图片清晰、光线充足后重新拍摄。")
		case errors.Is(err, pipeline.ErrAnalysisFormat):
			r.send(cid, "分析服务暂时不可用，请稍后再试。")
		default:
			r.send(cid, "处理出错了，请稍后再试。")
		}
		return
	}

	reply := tgbotapi.NewMessage(cid, formatResolution(res))
	reply.ParseMode = "Markdown"
	if _, err := r.Bot.Send(reply); err != nil {
		// markdown can choke on model output; retry as plain text
		r.send(cid, formatResolution(res))
	}
}

func download(url string) ([]byte, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
