// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	JWTSecret          string // アクセストークン署名用の秘密鍵
	TokenExpireMinutes int    // アクセストークンの有効期限（分）

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabaseDriver string // sqlite または postgres
	DatabaseURL    string // DSN（sqliteの場合はファイルパス）

	// ストレージ設定
	StorageRoot string // uploads/ と processed/ を配置するルートディレクトリ
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）

	// ジョブ記録設定
	JobStore          string // sql または redis
	JobRedisURL       string // JobStore=redis の場合の接続URL
	JobRecordTTLHours int    // Redisに保存するジョブ記録の保持期間（時間, 0で無期限）

	// PDF処理設定
	PdftoppmPath    string // ラスタライズに使う pdftoppm のパス
	TesseractPath   string // tesseract 実行ファイルのパス
	TessdataDir     string // tessdata ディレクトリ（空なら既定値）
	OCREngine       string // cli または gosseract
	GhostscriptPath string // 設定されている場合は圧縮にGhostscriptを使う

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // text または json
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// 認証設定
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenExpireMinutes: getEnvAsInt("TOKEN_EXPIRE_MINUTES", 30),

		// サーバー設定
		Port:    getEnv("PORT", "8000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		// データベース設定
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "pdfgenie.db"),

		// ストレージ設定
		StorageRoot: getEnv("STORAGE_ROOT", "."),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB

		// ジョブ記録設定
		JobStore:          getEnv("JOB_STORE", "sql"),
		JobRedisURL:       getEnv("JOB_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobRecordTTLHours: getEnvAsInt("JOB_RECORD_TTL_HOURS", 0),

		// PDF処理設定
		PdftoppmPath:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
		TesseractPath:   getEnv("TESSERACT_PATH", "tesseract"),
		TessdataDir:     getEnv("TESSDATA_DIR", ""),
		OCREngine:       getEnv("OCR_ENGINE", "cli"),
		GhostscriptPath: getEnv("GHOSTSCRIPT_PATH", ""),

		// ログ設定
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres (received: %s)", c.DatabaseDriver)
	}
	switch c.JobStore {
	case "sql", "redis":
	default:
		return fmt.Errorf("JOB_STORE must be sql or redis (received: %s)", c.JobStore)
	}
	switch c.OCREngine {
	case "cli", "gosseract":
	default:
		return fmt.Errorf("OCR_ENGINE must be cli or gosseract (received: %s)", c.OCREngine)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}

	// ローカル開発では署名鍵は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
		if c.JobStore == "redis" && c.JobRedisURL == "" {
			return fmt.Errorf("JOB_REDIS_URL is required when JOB_STORE=redis")
		}
	}

	return nil
}

// UploadsDir はアップロードファイルの保存先を返します。
func (c *Config) UploadsDir() string {
	return filepath.Join(c.StorageRoot, "uploads")
}

// ProcessedDir は処理結果の保存先を返します。
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.StorageRoot, "processed")
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
