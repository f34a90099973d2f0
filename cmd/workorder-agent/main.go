package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	liblog "trpc.group/trpc-go/trpc-a2a-go/log"

	"github.com/tuannvm/workorder-a2a/internal/agents"
	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/config"
	"github.com/tuannvm/workorder-a2a/internal/events"
	"github.com/tuannvm/workorder-a2a/internal/index"
	"github.com/tuannvm/workorder-a2a/internal/jira"
	"github.com/tuannvm/workorder-a2a/internal/llm"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/rag"
	"github.com/tuannvm/workorder-a2a/internal/registry"
	"github.com/tuannvm/workorder-a2a/internal/scoring"
)

func main() {
	fs := config.Flags("workorder-agent")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := log.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Route tRPC-A2A-Go internal logging through the same zap core style
	liblog.Default = zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
				TimeKey:      "ts",
				LevelKey:     "lvl",
				MessageKey:   "message",
				CallerKey:    "caller",
				EncodeLevel:  zapcore.CapitalLevelEncoder,
				EncodeTime:   zapcore.RFC3339TimeEncoder,
				EncodeCaller: zapcore.ShortCallerEncoder,
			}),
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(levelOf(cfg.LogLevel)),
		),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	).Sugar()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Infof("Server shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	tracker, err := jira.NewAtlassianClient(cfg)
	if err != nil {
		return err
	}

	generator, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	tables, err := scoring.LoadTables(cfg.ScoringTablesPath)
	if err != nil {
		return err
	}

	idx, err := index.Open(ctx, cfg, generator)
	if err != nil {
		return err
	}
	defer idx.Close()

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	reg := registry.New(tracker, tables, cfg.JiraDefaultJQL)
	if err := reg.EnsureLoaded(ctx); err != nil {
		// Reads fail with ErrNotLoaded until a refresh action succeeds.
		log.Warnf("Initial work order refresh failed: %v", err)
	}

	pipeline := rag.NewPipeline(reg, idx, generator, rag.Options{
		TopK:         cfg.GenerationTopK,
		StageTimeout: cfg.GenerationStageTimeout,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
	})

	agent := agents.NewWorkOrderAgent(agents.Dependencies{
		Registry:   reg,
		Generator:  pipeline,
		Ingester:   rag.NewIngester(tracker, idx),
		Tracker:    tracker,
		Events:     publisher,
		LocalFirst: cfg.WorkOrdersLocalFirst,
	})

	srv, err := common.SetupServer(common.SetupServerOptions{
		AgentName:    cfg.AgentName,
		AgentVersion: cfg.AgentVersion,
		AgentURL:     cfg.AgentURL,
		AuthType:     cfg.AuthType,
		JWTSecret:    cfg.JWTSecret,
		APIKey:       cfg.APIKey,
		Processor:    agent,
		Skills:       agents.Skills(),
	})
	if err != nil {
		return fmt.Errorf("failed to setup A2A server: %w", err)
	}

	provider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
	if err != nil {
		return err
	}

	log.Infof("Starting %s on %s:%d (webhook port %d)", cfg.AgentName, cfg.ServerHost, cfg.ServerPort, cfg.WebhookPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return common.StartServer(gctx, srv, cfg.ServerHost, cfg.ServerPort)
	})
	g.Go(func() error {
		return agent.StartWebhookServer(gctx, fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.WebhookPort), provider)
	})
	return g.Wait()
}

func levelOf(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
