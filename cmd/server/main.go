package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gwi.com/video-qa/internal/api"
	"gwi.com/video-qa/internal/cache"
	"gwi.com/video-qa/internal/config"
	"gwi.com/video-qa/internal/core"
	"gwi.com/video-qa/internal/events"
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/tokens"
	"gwi.com/video-qa/internal/transcript"
	"gwi.com/video-qa/internal/vectorindex"
)

func main() {
	// Command line flags for one-shot ingestion
	ingestFlag := flag.Bool("ingest", false, "Index one video transcript and exit")
	videoFlag := flag.String("video", "", "Video ID to ingest")
	titleFlag := flag.String("title", "", "Video title (ignored with -from-cassandra)")
	srtFlag := flag.String("srt", "", "Path to an SRT caption file")
	cassandraFlag := flag.Bool("from-cassandra", false, "Read captions for -video from Cassandra")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, TimeFormat: time.RFC3339})
	log.Info().Str("vector_backend", cfg.Vector.Backend).Bool("debug_errors", cfg.DebugErrors).Msg("Service starting")

	ctx := context.Background()

	srv, err := buildServer(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer srv.Close()

	// Handle ingestion if flag is set
	if *ingestFlag {
		if err := ingest(ctx, cfg, srv.indexing, *videoFlag, *titleFlag, *srtFlag, *cassandraFlag); err != nil {
			log.Error().Err(err).Msg("Ingestion failed")
			srv.Close()
			os.Exit(1)
		}
		return
	}

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Generation calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting gracefully")
}

// server holds the wired HTTP handler and the resources to release on exit.
type server struct {
	handler  http.Handler
	indexing *core.IndexingService
	closers  []func()
}

// Close releases resources in reverse order of acquisition.
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// buildServer wires stores, providers, index, cache, analytics and services. Metrics
// are registered on reg exactly once.
func buildServer(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			srv.Close()
		}
	}()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	srv.closers = append(srv.closers, func() { dbStore.Close() })

	registry, closeProviders, err := buildRegistry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	srv.closers = append(srv.closers, closeProviders)

	index, closeIndex, err := buildIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	srv.closers = append(srv.closers, closeIndex)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.ConnectRedis(ctx, cache.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, summaries read from the database")
			rdb, err = nil, nil
		} else {
			srv.closers = append(srv.closers, func() { rdb.Close() })
		}
	}
	summaries := cache.NewSummaryCache(rdb, dbStore, cfg.Redis.SummaryTTL)

	m := metrics.NewMetrics(reg)
	publisher := events.New(&events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, Enabled: cfg.Kafka.Enabled}, m)
	srv.closers = append(srv.closers, func() { publisher.Close() })
	analytics := core.NewAnalyticsFanout(
		core.NamedRecorder{Name: "sqlite", Recorder: dbStore},
		core.NamedRecorder{Name: "kafka", Recorder: publisher},
	)

	log.Info().Str("token_counter", tokens.Default().Method()).Msg("Context budget counter ready")

	pipeline := cfg.Pipeline()
	retriever := core.NewRetriever(pipeline, registry, index, dbStore, summaries, m)
	srv.indexing = core.NewIndexingService(pipeline, registry, dbStore, index, m)
	answers := core.NewAnswerService(pipeline, retriever, registry, analytics, m)
	summarizer := core.NewSummaryService(pipeline, registry, dbStore, summaries, m)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(answers, srv.indexing, summarizer, dbStore, cfg.DebugErrors)
	srv.handler = api.NewRouter(apiHandler)
	return srv, nil
}

// buildRegistry registers a client for every provider that has credentials.
func buildRegistry(ctx context.Context, cfg *config.Config) (*llm.Registry, func(), error) {
	registry := llm.NewRegistry()
	closeFn := func() {}

	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, err
		}
		registry.RegisterEmbedder(llm.ProviderGemini, gemini)
		registry.RegisterGenerator(llm.ProviderGemini, gemini)
		closeFn = gemini.Close
	}
	if cfg.OpenAIAPIKey != "" {
		openai := llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, 60*time.Second)
		registry.RegisterEmbedder(llm.ProviderOpenAI, openai)
		registry.RegisterGenerator(llm.ProviderOpenAI, openai)
	}

	log.Info().Interface("providers", registry.Providers()).Msg("Providers registered")
	return registry, closeFn, nil
}

func buildIndex(ctx context.Context, cfg *config.Config) (core.VectorIndex, func(), error) {
	if cfg.Vector.Backend == "memory" {
		log.Warn().Msg("Using the in-memory vector index; vectors are lost on restart")
		return vectorindex.NewMemoryIndex(), func() {}, nil
	}

	q, err := vectorindex.NewQdrantIndex(ctx, vectorindex.QdrantConfig{
		Host:       cfg.Vector.QdrantHost,
		Port:       cfg.Vector.QdrantPort,
		APIKey:     cfg.Vector.QdrantAPIKey,
		UseTLS:     cfg.Vector.QdrantUseTLS,
		Collection: cfg.Vector.Collection,
		VectorSize: uint64(cfg.Vector.VectorSize),
	})
	if err != nil {
		return nil, nil, err
	}
	return q, func() { q.Close() }, nil
}

func ingest(ctx context.Context, cfg *config.Config, indexing *core.IndexingService, videoID, title, srtPath string, fromCassandra bool) error {
	if videoID == "" {
		return fmt.Errorf("-video is required with -ingest")
	}

	var segments []transcript.Segment
	switch {
	case fromCassandra:
		source, err := transcript.ConnectCassandra(transcript.CassandraConfig{
			Hosts:    cfg.Cassandra.Hosts,
			Keyspace: cfg.Cassandra.Keyspace,
			Timeout:  cfg.Cassandra.Timeout,
		})
		if err != nil {
			return err
		}
		defer source.Close()

		title, segments, err = source.FetchTranscript(ctx, videoID)
		if err != nil {
			return err
		}
	case srtPath != "":
		raw, err := os.ReadFile(srtPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", srtPath, err)
		}
		segments, err = transcript.ParseSRT(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", srtPath, err)
		}
	default:
		return fmt.Errorf("-ingest needs -srt or -from-cassandra")
	}

	log.Info().Str("video_id", videoID).Int("segments", len(segments)).Msg("Starting ingestion")
	res, err := indexing.IndexVideo(ctx, core.IndexRequest{VideoID: videoID, Title: title, Segments: segments})
	if err != nil {
		return err
	}
	log.Info().
		Str("video_id", res.VideoID).
		Int("chunks", res.Chunks).
		Int("indexed", res.Indexed).
		Str("provider", res.EmbeddingProvider).
		Bool("used_fallback", res.UsedFallback).
		Msg("Ingestion complete")
	return nil
}
