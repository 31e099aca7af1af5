package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/driftwatch/internal/actionqueue"
	"github.com/nextlevelbuilder/driftwatch/internal/agent"
	"github.com/nextlevelbuilder/driftwatch/internal/browser"
	"github.com/nextlevelbuilder/driftwatch/internal/config"
	"github.com/nextlevelbuilder/driftwatch/internal/core"
	"github.com/nextlevelbuilder/driftwatch/internal/knowledge"
	"github.com/nextlevelbuilder/driftwatch/internal/mediastore"
	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/providers"
	"github.com/nextlevelbuilder/driftwatch/internal/scheduler"
	"github.com/nextlevelbuilder/driftwatch/internal/search"
	"github.com/nextlevelbuilder/driftwatch/internal/store/sqlite"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reactive message loop and proactive crawl loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	provider := buildProvider()
	textCompleter := providers.NewTextAdapter(provider, "")
	toolCompleter := providers.NewToolAdapter(provider, "")
	embedder := providers.NewOpenAIEmbedder(os.Getenv("DRIFTWATCH_EMBEDDING_API_KEY"), os.Getenv("DRIFTWATCH_EMBEDDING_API_BASE"), "")

	summaries := memory.NewSummaryStore(db, textCompleter, cfg.Memory.SummaryMaxPerUser)
	history := memory.NewHistoryStore(db)
	profiles := memory.NewProfileStore(db)
	contextStore := memory.NewContextStore(cfg.Memory.ContextTTL, cfg.Memory.AnalysisInterval, textCompleter, summaries, filepath.Join(cfg.Storage.DataDir, "context_state.json"))

	kb := knowledge.New(db, embedder)

	fetcher, err := browser.NewRodFetcher(true)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	searchProvider := search.NewDuckDuckGo()

	b := browser.New(browser.Config{
		MaxPagesPerHour: cfg.Browser.MaxPagesPerHour,
		HubCooldown:     cfg.Browser.HubCooldown,
		LinkStale:       cfg.Browser.LinkStale,
		StatePath:       filepath.Join(cfg.Storage.DataDir, "browser_state.json"),
	}, fetcher, fetcher, textCompleter, searchProvider, kb)

	queue := actionqueue.New(actionqueue.Config{
		RateLimitDelay:    cfg.ActionQueue.RateLimitDelay,
		MaxRetries:        cfg.ActionQueue.MaxRetries,
		RetryBaseDelay:    cfg.ActionQueue.RetryBaseDelay,
		ProactiveCooldown: cfg.ActionQueue.ProactiveCooldown,
		TickInterval:      cfg.ActionQueue.WorkerTick,
	})
	queue.RegisterMessageSender(func(ctx context.Context, userID, content string) error {
		slog.Info("driftwatch: outbound message (no transport wired)", "user", userID, "content", content)
		return nil
	})

	registry := agent.NewRegistry()
	agent.RegisterTools(registry, searchProvider, history, kb, b, profiles)

	a := agent.New(agent.Config{
		ContextStore:  contextStore,
		Summaries:     summaries,
		KnowledgeBase: kb,
		ToolCompleter: toolCompleter,
		TextCompleter: textCompleter,
		Registry:      registry,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
	})

	sched := scheduler.New(scheduler.Config{
		TickInterval:        cfg.Tick.Interval,
		MaintenanceInterval: cfg.Tick.MaintenanceInterval,
		BatchFlushTicks:     cfg.Tick.BatchFlushTicks,
		KnowledgeMaxAgeDays: cfg.Knowledge.MaxAgeDays,
		MaintenanceCron:     cfg.Tick.MaintenanceCron,
	}, contextStore, b, kb, kb, a, queue)

	mediaStore, err := mediastore.New(filepath.Join(cfg.Storage.DataDir, "media"))
	if err != nil {
		return err
	}

	c := core.New(core.Config{
		DB:         db,
		Agent:      a,
		Queue:      queue,
		History:    history,
		MediaStore: mediaStore,
	})
	_ = c // wired for external transports to call into; none are registered in this standalone run loop

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go queue.Start(ctx)
	go sched.Start(ctx)

	slog.Info("driftwatch: running", "tick", cfg.Tick.Interval, "data_dir", cfg.Storage.DataDir)
	<-ctx.Done()
	slog.Info("driftwatch: shutting down")
	queue.Stop()
	sched.Stop()
	contextStore.WaitDeepAnalysis()
	return nil
}

func buildProvider() providers.Provider {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return providers.NewAnthropicProvider(key)
	}
	return providers.NewOpenAIProvider("openai", os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_API_BASE"), os.Getenv("DRIFTWATCH_MODEL"))
}
