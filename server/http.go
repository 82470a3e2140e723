package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"video-relay/config"
	"video-relay/constant"
	jobHandler "video-relay/handler"
	"video-relay/pkg/metrics"
	"video-relay/pkg/rabbitmq"
	"video-relay/pkg/storage"
	"video-relay/pkg/worker"
	"video-relay/provider"
	"video-relay/repository"
	"video-relay/service"
)

const shutdownTimeout = 10 * time.Second

// startWorkers readies the job side of a dispatcher. The returned func blocks
// until ctx is done and every running job has returned.
type startWorkers func(ctx context.Context, deps jobHandler.ServiceDependencies) (wait func() error)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("video_relay", registry)

	repo := repository.NewRepo(repository.Options{MaxRecords: cfg.Generation.MaxRecords})
	providers := newProviders(ctx, cfg, repo, collector)
	mock := provider.NewMock(provider.MockConfig{StageDelay: cfg.Providers.MockStageDelay}, repo, collector)

	dispatcher, start, err := newDispatcher(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("dispatcher", string(cfg.Generation.Dispatcher)).Msg("failed to set up dispatcher")
		return
	}

	generationService := service.NewService(repo, providers, mock, dispatcher, collector, service.Options{
		MaxPromptLength: cfg.Generation.MaxPromptLength,
		VideoTimeout:    cfg.Generation.VideoTimeout,
		Retention:       cfg.Generation.Retention,
	})
	serviceDeps := jobHandler.ServiceDependencies{
		GenerationService: generationService,
	}

	for _, p := range providers {
		zerolog.Ctx(ctx).Info().Str("provider", p.Name().String()).Bool("configured", p.Configured()).Msg("provider registered")
	}

	r := gin.New()
	r.Use(gin.Recovery(), cors.Default(), requestLogger(ctx), requestMetrics(collector))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	jobHandler.NewHTTPHandler(generationService, cfg.Server.StaticDir).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	wait := start(gctx, serviceDeps)
	g.Go(func() error {
		err := wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		service.RunReaper(gctx, generationService, cfg.Generation.ReapInterval)
		return nil
	})
	g.Go(func() error {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", handler.Addr).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zerolog.Ctx(ctx).Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return handler.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Err(err).Msg("server stopped with error")
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// newProviders builds the external adapters in fallback order.
func newProviders(ctx context.Context, cfg *config.Config, repo repository.GenerationRepository, collector *metrics.Collector) []provider.Provider {
	luma := provider.DefaultLumaConfig()
	luma.APIKey = cfg.Providers.LumaAPIKey
	replicate := provider.DefaultReplicateConfig()
	replicate.APIToken = cfg.Providers.ReplicateAPIToken
	huggingFace := provider.DefaultHuggingFaceConfig()
	huggingFace.APIKey = cfg.Providers.HuggingFaceAPIKey

	if cfg.Providers.LumaBaseURL != "" {
		luma.BaseURL = cfg.Providers.LumaBaseURL
	}
	if cfg.Providers.ReplicateBaseURL != "" {
		replicate.BaseURL = cfg.Providers.ReplicateBaseURL
	}
	if cfg.Providers.ReplicateModel != "" {
		replicate.ModelVersion = cfg.Providers.ReplicateModel
	}
	if cfg.Providers.HuggingFaceBaseURL != "" {
		huggingFace.BaseURL = cfg.Providers.HuggingFaceBaseURL
	}
	if cfg.Providers.HuggingFaceModel != "" {
		huggingFace.Model = cfg.Providers.HuggingFaceModel
	}
	if interval := cfg.Providers.PollInterval; interval > 0 {
		luma.Poll.Interval = interval
		replicate.Poll.Interval = interval
		huggingFace.Poll.Interval = interval
	}

	var videoStore provider.VideoStore
	if cfg.Storage != nil {
		store := storage.NewVideoStore(cfg.Storage, cfg.MinIO.Bucket, cfg.MinIO.PublicURL)
		if err := store.EnsureBucket(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("video storage unavailable, hugging face results will use a placeholder url")
		} else {
			videoStore = store
		}
	}

	return []provider.Provider{
		provider.NewLuma(luma, nil, repo, collector),
		provider.NewReplicate(replicate, nil, repo, collector),
		provider.NewHuggingFace(huggingFace, nil, videoStore, repo, collector),
	}
}

func newDispatcher(ctx context.Context, cfg *config.Config) (service.Dispatcher, startWorkers, error) {
	if cfg.Generation.Dispatcher == constant.DispatcherRabbitMQ {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := rabbitmq.NewPublisher(conn, cfg.Queue)
		if err != nil {
			return nil, nil, err
		}
		consumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.JobHandler)
		return publisher, func(ctx context.Context, deps jobHandler.ServiceDependencies) func() error {
			return func() error {
				defer publisher.Close()
				return consumer.Consume(ctx, deps)
			}
		}, nil
	}

	pool := worker.NewPool[jobHandler.ServiceDependencies](cfg.Server.Workers, jobHandler.GenerationHandler)
	return pool, func(ctx context.Context, deps jobHandler.ServiceDependencies) func() error {
		pool.Start(ctx, deps)
		return func() error {
			<-ctx.Done()
			pool.Stop()
			pool.Wait()
			return nil
		}
	}, nil
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
