package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/nsharma/weft/internal/agent"
	"github.com/nsharma/weft/internal/capabilities"
	"github.com/nsharma/weft/internal/engine"
	"github.com/nsharma/weft/internal/gateway"
	"github.com/nsharma/weft/internal/governance"
	"github.com/nsharma/weft/internal/observability"
	"github.com/nsharma/weft/internal/store"
	"github.com/nsharma/weft/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	manifest := capabilities.DefaultManifest()
	if cfg.App.Manifest != "" {
		m, err := capabilities.LoadManifest(cfg.App.Manifest)
		if err != nil {
			log.Fatal(err)
		}
		manifest = m
	}

	sessions, err := store.NewSessionStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}

	// Capabilities
	registry := engine.NewRegistry()

	renderer := capabilities.NewPageRenderer()
	defer renderer.Close()
	extractor := capabilities.NewWebpageExtractor(renderer)
	sheets := capabilities.NewSheetStore(cfg.App.Workspace)
	notifier := capabilities.NewChatNotifier(nil)
	goals := capabilities.NewGoalScheduler(sessions)
	files := capabilities.NewWorkspaceFiles(cfg.App.Workspace)

	caps := []*engine.Capability{
		extractor.Capability(),
		sheets.UpsertCapability(),
		sheets.ShareCapability(),
		notifier.Capability(),
		goals.Capability(),
		files.Capability(),
	}
	if searcher, err := capabilities.NewWebSearcher(); err != nil {
		log.Printf("Warning: Failed to initialize web search: %v", err)
	} else {
		caps = append(caps, searcher.Capability())
	}
	capabilities.RegisterAll(registry, manifest, caps...)

	// Governance
	gov := governance.NewDefaultPolicyEngine()
	for _, name := range cfg.Policy.DeniedCapabilities {
		gov.DenyCapability(name)
	}
	for _, pattern := range cfg.Policy.DeniedArgPatterns {
		if err := gov.DenyArguments(pattern); err != nil {
			log.Fatalf("Invalid policy pattern %q: %v", pattern, err)
		}
	}

	logger := observability.NewLogger()

	executor := engine.NewExecutor(registry, logger)
	executor.Policy = governance.AsPolicyFunc(gov, logger)
	executor.GracePeriod = cfg.GracePeriod()

	// LLM (using default enabled provider); without one the brain falls
	// back to the rule-based pipeline.
	var llm llms.Model
	pName, pCfg := cfg.GetDefaultProvider()
	switch pName {
	case "":
		log.Println("No enabled provider found, running with the rule-based planner")
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
		if err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}

	prompts := agent.NewPromptManager("./prompts")
	brain := agent.NewPlannerBrain(llm, registry, executor, sessions, prompts)
	brain.Logger = logger
	brain.Env = environMap()

	// Gateways
	var gateways []gateway.Messenger
	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, brain)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
	}
	if dcCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, brain)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
	}
	if len(gateways) == 0 {
		log.Fatal("No gateway is enabled in config")
	}

	// The first gateway doubles as the outbound channel for notify_chat
	// and scheduled goal output.
	notifier.Sender = gateways[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := agent.NewScheduler(brain, sessions, gateways[0])
	go scheduler.Start(ctx)

	// Live dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	for _, gw := range gateways {
		go func(gw gateway.Messenger) {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}(gw)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	for _, gw := range gateways {
		gw.Stop()
	}

	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
