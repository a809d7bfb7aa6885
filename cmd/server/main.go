// Command server runs the chat backend: an HTTP API serving authentication,
// chat history, share links, and the streaming assistant endpoint.
//
// Configuration comes from the environment (a .env file is honored in
// development); see internal/config for the full list of knobs.
package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/nereus-ai/chat-backend/docs"
	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/cache"
	"github.com/nereus-ai/chat-backend/internal/config"
	"github.com/nereus-ai/chat-backend/internal/domain"
	httpapi "github.com/nereus-ai/chat-backend/internal/http"
	"github.com/nereus-ai/chat-backend/internal/observability"
	"github.com/nereus-ai/chat-backend/internal/repo"
	"github.com/nereus-ai/chat-backend/internal/search"
	"github.com/nereus-ai/chat-backend/internal/services"
	"github.com/nereus-ai/chat-backend/internal/store"
	"github.com/nereus-ai/chat-backend/internal/sysutil"
)

const version = "1.0.0"

// @title        Chat Backend API
// @version      1.0
// @description  Authentication, chat history, share links, and the streaming assistant.
// @BasePath     /api/v1
func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("opentelemetry setup failed")
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(fctx); err != nil {
			logger.Warn().Err(err).Msg("opentelemetry shutdown")
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("document store setup failed")
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("document store ready")

	seedUser(ctx, st, logger)

	chats := repo.NewChatRepository(st, cache.NewLRU(cfg.CacheMaxEntries), cfg.ChatPageSize, logger)
	users := repo.NewUserRepository(st, logger)
	idem := repo.NewIdempotencyRepository(st, cfg.IdempotencyTTL, logger)

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)
	authSvc := services.NewAuthService(users, issuer)
	assistant := &services.AssistantService{
		Chats:          chats,
		Index:          buildIndex(cfg, logger),
		Stream:         services.NewOpenAIStreamer(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model),
		MaxPromptRunes: cfg.MaxPromptRunes,
	}

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		logger.Warn().Strs("keys", missing).Msg("running without required keys; dependent features degrade")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	// Compress responses, but never the SSE stream: compressed chunks defeat
	// incremental delivery through proxies.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/chats/[^/]+/messages$`}),
	))
	httpapi.RegisterRoutes(r, httpapi.Dependencies{
		Sessions:    issuer,
		Chats:       chats,
		Auth:        authSvc,
		Assistant:   assistant,
		Idempotency: idem,
		MissingKeys: cfg.MissingKeys,
	}, cfg)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.Version = version
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

// openStore selects the document store driver. The memory driver exists for
// development and tests; everything else goes through DynamoDB.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "dynamodb":
		return store.NewDynamoStore(ctx, store.DynamoOptions{
			TablePrefix: cfg.Store.TablePrefix,
			Endpoint:    cfg.Store.Endpoint,
			Region:      cfg.Store.Region,
			OpTimeout:   cfg.Store.OpTimeout,
		})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown store driver: " + cfg.Store.Driver)
	}
}

// buildIndex loads the Markdown knowledge base and builds the retrieval
// index. A missing or unreadable file is not fatal: the assistant still
// answers, just without grounding or citations.
func buildIndex(cfg config.Config, logger zerolog.Logger) search.Index {
	path := sysutil.FirstNonEmpty(cfg.DataMD, cfg.DataPath)
	md, err := search.PrepareMarkdownInMemory(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("knowledge base unavailable; answers will be ungrounded")
		return nil
	}
	idx, err := search.NewIndexFromReader(bytes.NewReader(md))
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("index build failed; answers will be ungrounded")
		return nil
	}
	logger.Info().Str("path", path).Msg("knowledge index ready")
	return idx
}

// seedUser provisions a development account when AUTH_SEED is truthy.
// Account creation belongs to another system in production; this exists so a
// fresh memory-store instance has something to log in with.
func seedUser(ctx context.Context, st store.Store, logger zerolog.Logger) {
	if !sysutil.IsTruthy(os.Getenv("AUTH_SEED")) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(sysutil.FirstNonEmpty(os.Getenv("AUTH_SEED_EMAIL"), "dev@localhost")))
	password := sysutil.FirstNonEmpty(os.Getenv("AUTH_SEED_PASSWORD"), "password")
	salt := uuid.NewString()
	u := domain.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: auth.HashPassword(password, salt),
		Salt:     salt,
	}
	if err := st.Set(ctx, "user", email, u); err != nil {
		logger.Warn().Err(err).Msg("development user seeding failed")
		return
	}
	logger.Info().Str("email", email).Msg("seeded development user")
}
