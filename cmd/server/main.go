package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/topichat/internal/api"
	"github.com/npezzotti/topichat/internal/changefeed"
	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/curator"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/llm"
	"github.com/npezzotti/topichat/internal/logging"
	"github.com/npezzotti/topichat/internal/news"
	"github.com/npezzotti/topichat/internal/server"
	"github.com/npezzotti/topichat/internal/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	articleCacheTTL   = 30 * time.Minute
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	logFile        string
	production     bool
	debug          bool
	curatorCfg     config.CuratorConfig
	llmCfg         config.LLMConfig
)

func main() {
	if err := config.LoadEnv(); err != nil {
		zap.NewExample().Fatal("load .env", zap.Error(err))
	}

	flag.StringVar(&addr, "addr", config.Getenv("TOPICHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", config.Getenv("TOPICHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("TOPICHAT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	allowedOrigins = config.GetenvList("TOPICHAT_ALLOWED_ORIGINS")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&logFile, "log-file", config.Getenv("TOPICHAT_LOG_FILE", ""), "rotating JSON log file")
	flag.BoolVar(&production, "production", config.GetenvBool("TOPICHAT_PRODUCTION", false), "log JSON to the console")
	flag.BoolVar(&debug, "debug", config.GetenvBool("TOPICHAT_DEBUG", false), "enable debug logging")

	flag.StringVar(&curatorCfg.Secret, "curator-secret", config.Getenv("CURATOR_SECRET", ""), "shared secret for the curator batch endpoints")
	flag.StringVar(&curatorCfg.IdleCron, "idle-cron", config.Getenv("CURATOR_IDLE_CRON", ""), "cron schedule for idle prompts, empty to disable")
	flag.StringVar(&curatorCfg.NewsCron, "news-cron", config.Getenv("CURATOR_NEWS_CRON", ""), "cron schedule for news summaries, empty to disable")
	flag.StringVar(&curatorCfg.SummaryCron, "summary-cron", config.Getenv("CURATOR_SUMMARY_CRON", ""), "cron schedule for daily room digests, empty to disable")
	flag.StringVar(&curatorCfg.NewsFeedURL, "news-feed-url", config.Getenv("CURATOR_NEWS_FEED_URL", ""), "RSS search endpoint for article lookup")
	flag.IntVar(&curatorCfg.Concurrency, "curator-concurrency", config.GetenvInt("CURATOR_CONCURRENCY", 0), "rooms or interests processed at once")
	flag.IntVar(&curatorCfg.QARatePerMinute, "qa-rate", config.GetenvInt("CURATOR_QA_RATE_PER_MINUTE", 0), "curator questions per room per minute")
	flag.IntVar(&curatorCfg.QABurst, "qa-burst", config.GetenvInt("CURATOR_QA_BURST", 0), "curator question burst per room")

	flag.StringVar(&llmCfg.Provider, "llm-provider", config.Getenv("LLM_PROVIDER", config.ProviderGemini), "gemini or ollama")
	flag.StringVar(&llmCfg.GeminiModel, "gemini-model", config.Getenv("GEMINI_MODEL", ""), "gemini model name")
	flag.StringVar(&llmCfg.OllamaBaseURL, "ollama-url", config.Getenv("OLLAMA_BASE_URL", ""), "ollama base URL")
	flag.StringVar(&llmCfg.OllamaModel, "ollama-model", config.Getenv("OLLAMA_MODEL", ""), "ollama model name")
	flag.Parse()
	llmCfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins,
		config.WithCurator(curatorCfg),
		config.WithLLM(llmCfg),
		config.WithLogFile(logFile, production),
	)
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	logger := logging.New(logging.Options{File: cfg.LogFile, Production: cfg.Production, Level: level})
	defer logger.Sync()

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("db close", zap.Error(err))
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server", zap.Error(err))
	}

	bus := changefeed.NewBus(logger.Named("changefeed"))
	defer bus.Close()

	gen, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		logger.Fatal("llm", zap.Error(err))
	}
	finder := news.NewCachingFinder(news.NewRSSFinder(cfg.Curator.NewsFeedURL), articleCacheTTL)
	cur := curator.New(dbConn, gen, finder, bus, statsUpdater, logger.Named("curator"),
		curator.WithConcurrency(cfg.Curator.Concurrency))

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, statsUpdater, cfg,
		api.WithPublisher(bus),
		api.WithCuratorService(cur),
	)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := bus.Subscribe(ctx)
	if err != nil {
		logger.Fatal("subscribe to changes", zap.Error(err))
	}
	go chatServer.ConsumeChanges(ctx, changes)

	scheduler := curator.NewScheduler(logger.Named("scheduler"),
		curator.Job{Name: "idle", Cron: cfg.Curator.IdleCron, Run: func(ctx context.Context) error {
			_, err := cur.RunIdle(ctx)
			return err
		}},
		curator.Job{Name: "news", Cron: cfg.Curator.NewsCron, Run: func(ctx context.Context) error {
			_, err := cur.RunNews(ctx)
			return err
		}},
		curator.Job{Name: "summaries", Cron: cfg.Curator.SummaryCron, Run: func(ctx context.Context) error {
			_, err := cur.RunSummaries(ctx)
			return err
		}},
	)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server", zap.Error(err))
	}

	shutDownCtx, shutDownCancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer shutDownCancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}

	cancel()
	select {
	case <-schedulerDone:
	case <-shutDownCtx.Done():
		logger.Warn("curator jobs still running at shutdown")
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error("chat server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
