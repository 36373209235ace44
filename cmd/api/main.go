// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf-genie/internal/auth"
	"github.com/yourusername/pdf-genie/internal/config"
	"github.com/yourusername/pdf-genie/internal/database"
	"github.com/yourusername/pdf-genie/internal/documents"
	"github.com/yourusername/pdf-genie/internal/jobs"
	"github.com/yourusername/pdf-genie/internal/native"
	"github.com/yourusername/pdf-genie/internal/pdf"
	"github.com/yourusername/pdf-genie/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	if err := serve(cfg, logger); err != nil {
		logger.WithError(err).Fatal("API server stopped")
	}
}

// serve はサーバーを起動し、終了時に依存関係を閉じます。
func serve(cfg *config.Config, logger *logrus.Logger) error {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	app, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = splitOrigins(cfg.CORSAllowedOrigins)
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	// ダウンロード時にファイル名とジョブIDを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, app)

	// サーバーの起動
	addr := ":" + cfg.Port
	logger.Infof("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	return router.Run(addr)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// app は起動時に組み立てた依存関係です。
type app struct {
	db        *database.DB
	closers   []func() error
	auth      *auth.Manager
	documents *documents.Service
	pdf       *pdf.Service
	tracker   *jobs.Tracker
	languages pdf.LanguageLister
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, closers: []func() error{db.Close}}
	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	files, err := storage.NewLocal(cfg.UploadsDir(), cfg.ProcessedDir())
	if err != nil {
		a.Close()
		return nil, err
	}

	// 開発時は署名鍵が未設定でも起動できるよう一時的な鍵を使う
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET is not set; using an ephemeral signing key")
	}
	tokens, err := auth.NewTokenManager(secret, time.Duration(cfg.TokenExpireMinutes)*time.Minute)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auth = auth.NewManager(auth.NewUserStore(db), tokens, logger.WithField("component", "auth"))

	docStore := documents.NewSQLStore(db)
	a.documents = documents.NewService(docStore, files, cfg.MaxFileSize, logger.WithField("component", "documents"))

	jobStore, closeStore, err := setupJobStore(cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	a.tracker, err = jobs.NewTracker(jobStore, logger.WithField("component", "jobs"))
	if err != nil {
		a.Close()
		return nil, err
	}

	runner := native.ExecRunner{Logger: logger.WithField("component", "native")}
	tesseract := &native.TesseractCLI{Path: cfg.TesseractPath, TessdataDir: cfg.TessdataDir, Runner: runner}
	a.languages = tesseract

	recognizer := newRecognizer(cfg, tesseract, logger)
	var compressor pdf.Compressor
	if cfg.GhostscriptPath != "" {
		compressor = &native.Ghostscript{Path: cfg.GhostscriptPath, Runner: runner}
	}

	a.pdf, err = pdf.NewService(pdf.Deps{
		Documents:  docStore,
		Jobs:       a.tracker,
		Workspace:  files,
		Rasterizer: &native.Pdftoppm{Path: cfg.PdftoppmPath, Runner: runner},
		Recognizer: recognizer,
		Searchable: tesseract,
		Compressor: compressor,
		OCRResults: pdf.NewOCRResultStore(db),
		Logger:     logger.WithField("component", "pdf"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pdf-genie-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, a *app) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", a.auth.Register)
			authRoutes.POST("/login", a.auth.Login)
			authRoutes.GET("/me", a.auth.RequireAuth(), a.auth.Me)
		}

		protected := api.Group("")
		protected.Use(a.auth.RequireAuth())
		{
			pdfRoutes := protected.Group("/pdf")
			pdfRoutes.POST("/upload", documents.UploadHandler(a.documents))
			pdfRoutes.POST("/merge", pdf.MergeHandler(a.pdf))
			pdfRoutes.POST("/split", pdf.SplitHandler(a.pdf))
			pdfRoutes.POST("/compress", pdf.CompressHandler(a.pdf))
			pdfRoutes.POST("/convert", pdf.ConvertHandler(a.pdf))

			ocrRoutes := protected.Group("/ocr")
			ocrRoutes.POST("/extract-text", pdf.ExtractTextHandler(a.pdf))
			ocrRoutes.POST("/searchable-pdf", pdf.SearchablePDFHandler(a.pdf))
			ocrRoutes.GET("/languages", pdf.LanguagesHandler(a.languages))

			protected.GET("/user/documents", documents.ListHandler(a.documents))

			jobRoutes := protected.Group("/jobs")
			jobRoutes.GET("", jobListHandler(a.tracker))
			jobRoutes.GET("/:id", jobStatusHandler(a.tracker))
			jobRoutes.GET("/:id/download", jobDownloadHandler(a.tracker, a.pdf))
		}
	}
}
