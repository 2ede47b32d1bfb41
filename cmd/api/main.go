package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"framelens/internal/adapter/repo"
	"framelens/internal/blobstore"
	"framelens/internal/http/handlers"
	"framelens/internal/http/httpapi"
	"framelens/internal/infra"
	"framelens/internal/infra/credentials"
	"framelens/internal/infra/geoip"
	"framelens/internal/middleware"
	"framelens/internal/pipeline"
	"framelens/internal/providers/genai"
	"framelens/internal/providers/image"
	"framelens/internal/providers/prompt"
	"framelens/internal/providers/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	blobs, err := blobstore.New(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	apiKey := cfg.GeminiAPIKey
	if apiKey == "" {
		// Fall back to the key stored via the geminikey tool.
		apiKey, err = credentials.NewStore(runner).GeminiAPIKey(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to read stored Gemini API key")
		}
		if apiKey == "" {
			logger.Fatal().Msg("no Gemini API key configured: set GEMINI_API_KEY or run geminikey")
		}
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.GeminiBaseURL,
		TextModel:  cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		Timeout:    cfg.UpstreamTimeout,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build Gemini client")
	}

	cache := repo.NewAnalysisRepository(runner)
	executor := pipeline.NewExecutor(image.NewEditor(client), logger)
	orchestrator := pipeline.NewOrchestrator(blobs, cache, vision.NewCritic(client), prompt.NewPlanner(client), executor, logger)

	var lookup middleware.CountryLookup
	if resolver, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(orchestrator, cache, blobs, logger, cfg.MaxUploadBytes)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		Country:        lookup,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
