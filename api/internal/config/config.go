package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	// yandex | gemini
	OCREngine    string
	YCOAuthToken string
	YCFolderID   string

	GeminiAPIKey string
	GeminiModel  string

	DeepseekAPIKey string
	DeepseekModel  string

	TelegramBotToken string
	WebhookURL       string

	AnalyzeTimeout time.Duration
	MergePolicy    string
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads configuration from the environment, with .env as a convenience
// for local runs. Provider credentials are validated by the binaries, which
// know which providers they actually wire up.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: getEnv("DATABASE_URL", "studyhelper.db"),

		OCREngine:    getEnv("OCR_ENGINE", "gemini"),
		YCOAuthToken: os.Getenv("YC_OAUTH_TOKEN"),
		YCFolderID:   os.Getenv("YC_FOLDER_ID"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		DeepseekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		DeepseekModel:  getEnv("DEEPSEEK_MODEL", "deepseek-chat"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),

		AnalyzeTimeout: getSeconds("ANALYZE_TIMEOUT_SEC", 90*time.Second),
		MergePolicy:    getEnv("MERGE_POLICY", "overwrite"),
	}
}
