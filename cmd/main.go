// cmd/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"

	"go_course_platform/internal/config"
	"go_course_platform/internal/handlers"
	"go_course_platform/internal/middleware"
	"go_course_platform/internal/payment"
	"go_course_platform/internal/repository"
	"go_course_platform/internal/service"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	//　設定ファイル読み込み用の一時的なロガー設定
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(tempLogger)
	log.Println("Log Config Loading...")

	// Configを読み込み
	if err := config.LoadConfig("./configs"); err != nil {
		slog.Error("Error loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// === 設定に基づいて slog ロガーを初期化 ===
	logLevel := new(slog.LevelVar)
	switch strings.ToLower(config.Cfg.Log.Level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
		slog.Warn("Unknown log level specified in config, defaulting to INFO", slog.String("level", config.Cfg.Log.Level))
	}

	var handler slog.Handler
	appEnv := os.Getenv("APP_ENV")
	if strings.ToLower(appEnv) == "dev" {
		tintOpts := &tint.Options{
			Level:      logLevel,
			TimeFormat: time.RFC3339,
		}
		handler = tint.NewHandler(os.Stderr, tintOpts)
		tempLogger.Info("Using TINT log handler", slog.String("APP_ENV", appEnv))
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}
		handler = slog.NewJSONHandler(os.Stderr, jsonOpts)
		tempLogger.Info("Using JSON log handler", slog.String("APP_ENV", appEnv))
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Application starting...")

	// 2. Initialize Database Connection (GORM)
	db, err := repository.NewDB(config.Cfg.Database.URL, logger)
	if err != nil {
		slog.Error("Error initializing database", slog.Any("error", err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Error getting underlying sql.DB from GORM", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing database connection", slog.Any("error", err))
		} else {
			slog.Info("Database connection closed.")
		}
	}()

	// 3. Dependency Injection
	enrollmentRepo := repository.NewGormEnrollmentRepository()
	progressRepo := repository.NewGormProgressRepository()
	courseRepo := repository.NewGormCourseRepository()
	quizRepo := repository.NewGormQuizRepository()
	certificateRepo := repository.NewGormCertificateRepository()
	userRepo := repository.NewGormUserRepository()

	mailer := service.NewMailer(&config.Cfg)
	paymentClient := payment.NewClient(&config.Cfg.Payment)
	verifier := payment.NewVerifier(config.Cfg.Payment.KeySecret, config.Cfg.Payment.WebhookSecret)

	enrollmentService := service.NewEnrollmentService(db, enrollmentRepo, courseRepo, userRepo, mailer)
	progressService := service.NewProgressService(db, progressRepo, courseRepo, enrollmentRepo, enrollmentService, &config.Cfg)
	quizService := service.NewQuizService(db, quizRepo)
	certificateService := service.NewCertificateService(db, certificateRepo, enrollmentRepo, courseRepo, userRepo, mailer)
	paymentService := service.NewPaymentService(db, courseRepo, enrollmentRepo, enrollmentService, paymentClient, verifier, &config.Cfg)

	enrollmentHandler := handlers.NewEnrollmentHandler(enrollmentService, logger)
	progressHandler := handlers.NewProgressHandler(progressService, logger)
	quizHandler := handlers.NewQuizHandler(quizService, logger)
	certificateHandler := handlers.NewCertificateHandler(certificateService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)

	// 4. Setup Router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(logger))

	// CORS 設定と適用 (設定ファイルから読み込んだ値を使用)
	corsOptions := cors.Options{
		AllowedOrigins:   config.Cfg.CORS.AllowedOrigins,
		AllowedMethods:   config.Cfg.CORS.AllowedMethods,
		AllowedHeaders:   config.Cfg.CORS.AllowedHeaders,
		ExposedHeaders:   config.Cfg.CORS.ExposedHeaders,
		AllowCredentials: config.Cfg.CORS.AllowCredentials,
		MaxAge:           config.Cfg.CORS.MaxAge,
		Debug:            false,
	}
	corsHandler := cors.New(corsOptions)
	r.Use(corsHandler.Handler)

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		// --- Public routes ---
		// 証明書の公開検証 (採用担当者などの第三者が認証なしで確認できる)
		r.Get("/certificates/verify/{certificate_number}", certificateHandler.VerifyCertificate)
		// 決済プロバイダからのWebhook (署名で保護される)
		r.Post("/payments/webhook", paymentHandler.PostWebhook)

		// --- Protected routes (require JWT) ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuthMiddleware(&config.Cfg))

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Post("/orders", paymentHandler.PostOrder)
				r.Post("/verify", paymentHandler.PostVerify)
			})

			// Enrollment routes
			r.Route("/enrollments", func(r chi.Router) {
				r.Post("/", enrollmentHandler.PostEnrollment)
				r.Get("/", enrollmentHandler.GetEnrollments)
				r.Get("/stats", enrollmentHandler.GetEnrollmentStats)
				r.Post("/{enrollment_id}/complete", enrollmentHandler.CompleteEnrollment)
				r.Post("/{enrollment_id}/cancel", enrollmentHandler.CancelEnrollment)
			})

			// Progress routes
			r.Route("/videos/{video_id}/progress", func(r chi.Router) {
				r.Put("/", progressHandler.PutProgress)
				r.Get("/", progressHandler.GetVideoProgress)
			})
			r.Get("/courses/{course_id}/progress", progressHandler.GetCourseProgress)
			r.Get("/progress/recent", progressHandler.GetRecentProgress)

			// Quiz routes
			r.Get("/chapters/{chapter_id}/quiz", quizHandler.GetChapterQuiz)
			r.Route("/quizzes/{quiz_id}/attempts", func(r chi.Router) {
				r.Post("/", quizHandler.PostAttempt)
				r.Get("/", quizHandler.GetAttempts)
			})
			r.Get("/attempts/{attempt_id}/results", quizHandler.GetAttemptResults)

			// Certificate routes
			r.Route("/certificates", func(r chi.Router) {
				r.Get("/", certificateHandler.GetCertificates)
				r.Get("/{certificate_number}", certificateHandler.GetCertificateByNumber)
			})
			r.Post("/courses/{course_id}/certificate", certificateHandler.PostCertificate)
			r.Get("/courses/{course_id}/certificate/data", certificateHandler.GetCertificateData)
		})
	})

	// Health Check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sqlDB, err := db.DB()
		if err != nil {
			slog.ErrorContext(ctx, "Health check failed: could not get DB object", slog.Any("error", err))
			http.Error(w, "Health check failed", http.StatusInternalServerError)
			return
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			slog.ErrorContext(ctx, "Health check failed: could not ping DB", slog.Any("error", err))
			http.Error(w, "Health check failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 5. Start Server
	server := &http.Server{
		Addr:         config.Cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", slog.String("port", config.Cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen on port", slog.String("port", config.Cfg.Server.Port), slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", slog.Any("error", err))
	}

	log.Println("Server exiting")
}
