package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studyhelper/api/internal/analyzer/deepseek"
	"studyhelper/api/internal/config"
	"studyhelper/api/internal/httpserver"
	"studyhelper/api/internal/ocr"
	"studyhelper/api/internal/ocr/gemini"
	"studyhelper/api/internal/ocr/yandex"
	"studyhelper/api/internal/pipeline"
	"studyhelper/api/internal/store"
	"studyhelper/api/internal/telegram"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.DeepseekAPIKey == "" {
		log.Fatal("DEEPSEEK_API_KEY is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal("telegram connect", zap.Error(err))
	}
	bot.Debug = false
	log.Info("authorized", zap.String("bot", bot.Self.UserName))

	var yandexEngine, geminiEngine ocr.Engine
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		yandexEngine = yandex.New(cfg.YCOAuthToken, cfg.YCFolderID)
	}
	if cfg.GeminiAPIKey != "" {
		geminiEngine = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	defaultEngine := geminiEngine
	if cfg.OCREngine == "yandex" || defaultEngine == nil {
		defaultEngine = yandexEngine
	}
	if defaultEngine == nil {
		log.Fatal("no OCR engine configured: set GEMINI_API_KEY or YC_OAUTH_TOKEN/YC_FOLDER_ID")
	}
	manager := ocr.NewManager(defaultEngine)

	mistakes := store.NewMistakeRepo(db)
	resolver := &pipeline.Resolver{
		Questions:      store.NewQuestionRepo(db),
		Submissions:    store.NewSubmissionRepo(db),
		Mistakes:       mistakes,
		OCR:            defaultEngine,
		Analyzer:       deepseek.New(cfg.DeepseekAPIKey, cfg.DeepseekModel),
		Log:            log,
		Merge:          pipeline.ParseMergePolicy(cfg.MergePolicy),
		AnalyzeTimeout: cfg.AnalyzeTimeout,
	}

	router := &telegram.Router{
		Bot:      bot,
		Resolver: resolver,
		Mistakes: mistakes,
		Engines:  manager,
		Log:      log,
		Yandex:   yandexEngine,
		Gemini:   geminiEngine,
	}

	// healthz only; the bot itself runs on polling
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	go func() {
		if err := httpserver.Start(":"+cfg.Port, mux, log); err != nil {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	runPolling(context.Background(), bot, log, router.HandleUpdate)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

// runPolling long-polls Telegram with backoff; transient errors never kill
// the process.
func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, log *zap.Logger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info("polling stopped")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			log.Warn("polling error", zap.Error(err), zap.Duration("retry_in", d))
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}
