package main

import (
	"net/http"

	"go.uber.org/zap"

	"studyhelper/api/internal/analyzer/deepseek"
	"studyhelper/api/internal/config"
	"studyhelper/api/internal/handle"
	"studyhelper/api/internal/httpserver"
	"studyhelper/api/internal/ocr"
	"studyhelper/api/internal/ocr/gemini"
	"studyhelper/api/internal/ocr/yandex"
	"studyhelper/api/internal/pipeline"
	"studyhelper/api/internal/store"
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
	log.Info("database ready")

	engine := pickEngine(cfg, log)

	if cfg.DeepseekAPIKey == "" {
		log.Fatal("DEEPSEEK_API_KEY is required")
	}

	resolver := &pipeline.Resolver{
		Questions:      store.NewQuestionRepo(db),
		Submissions:    store.NewSubmissionRepo(db),
		Mistakes:       store.NewMistakeRepo(db),
		OCR:            engine,
		Analyzer:       deepseek.New(cfg.DeepseekAPIKey, cfg.DeepseekModel),
		Log:            log,
		Merge:          pipeline.ParseMergePolicy(cfg.MergePolicy),
		AnalyzeTimeout: cfg.AnalyzeTimeout,
	}

	mux := http.NewServeMux()
	handle.New(resolver, log).Register(mux)

	if err := httpserver.Start(":"+cfg.Port, mux, log); err != nil {
		log.Fatal("http server", zap.Error(err))
	}
}

func pickEngine(cfg *config.Config, log *zap.Logger) ocr.Engine {
	switch cfg.OCREngine {
	case "yandex":
		if cfg.YCOAuthToken == "" || cfg.YCFolderID == "" {
			log.Fatal("yandex engine needs YC_OAUTH_TOKEN and YC_FOLDER_ID")
		}
		return yandex.New(cfg.YCOAuthToken, cfg.YCFolderID)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Fatal("gemini engine needs GEMINI_API_KEY")
		}
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		log.Fatal("unknown OCR_ENGINE", zap.String("engine", cfg.OCREngine))
		return nil
	}
}
