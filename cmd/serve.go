package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/bus"
	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/live"
	"github.com/relaydesk/relaydesk/internal/memory"
	"github.com/relaydesk/relaydesk/internal/memory/cache"
	"github.com/relaydesk/relaydesk/internal/memory/durable"
	"github.com/relaydesk/relaydesk/internal/pipeline"
	"github.com/relaydesk/relaydesk/internal/recall"
	"github.com/relaydesk/relaydesk/internal/redisconn"
	"github.com/relaydesk/relaydesk/internal/router"
	"github.com/relaydesk/relaydesk/internal/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relaydesk routing core (channels + router + memory)",
	RunE:  runServe,
}

var serveConfigPath string

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Printf("🛎 Starting relaydesk on %s:%d...\n", cfg.Server.Host, cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fast memory cache
	var cacheStore memory.CacheStore
	switch cfg.Memory.CacheDriver {
	case "redis":
		client, err := redisconn.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis cache driver: %w", err)
		}
		defer client.Close()
		cacheStore = cache.NewRedisStore(client)
		log.Println("[Cache] ✅ Redis driver connected")
	default:
		memStore := cache.NewMemoryStore()
		go memStore.Janitor(ctx, time.Minute)
		cacheStore = memStore
	}

	// Durable memory store (optional)
	var durableStore memory.DurableStore
	if cfg.Durable.BaseURL != "" {
		durableStore = durable.NewClient(cfg.Durable.BaseURL, cfg.Durable.APIKey,
			time.Duration(cfg.Durable.TimeoutSec)*time.Second)
		log.Printf("[Memory] Durable store: %s", cfg.Durable.BaseURL)
	} else {
		log.Println("[Memory] ⚠ No durable store configured, cache only")
	}

	contextMgr := memory.NewManager(cacheStore, durableStore,
		memory.WithWindow(cfg.Memory.Window),
		memory.WithTTL(time.Duration(cfg.Memory.TTLHours)*time.Hour),
		memory.WithDurableTimeout(time.Duration(cfg.Durable.TimeoutSec)*time.Second),
	)

	// Long-term recall (optional)
	var recallStore *recall.Store
	if cfg.Recall.Enabled && cfg.Recall.QdrantURL != "" {
		embedder := recall.NewHTTPEmbedder(cfg.Recall.EmbeddingAPIKey, cfg.Recall.EmbeddingAPIBase, cfg.Recall.EmbeddingModel)
		recallStore, err = recall.New(recall.Config{
			URL:        cfg.Recall.QdrantURL,
			APIKey:     cfg.Recall.QdrantAPIKey,
			Collection: cfg.Recall.Collection,
			Dimensions: cfg.Recall.Dimensions,
			MinScore:   cfg.Recall.MinScore,
		}, embedder)
		if err != nil {
			return fmt.Errorf("recall store: %w", err)
		}
		defer recallStore.Close()
		if err := recallStore.EnsureCollection(ctx); err != nil {
			log.Printf("[Recall] ⚠️ Collection setup failed, recall disabled: %v", err)
			recallStore = nil
		} else {
			log.Println("[Recall] ✅ Connected")
		}
	}

	// Collaborator clients
	if cfg.Pipeline.Endpoint == "" {
		return fmt.Errorf("pipeline endpoint not configured")
	}
	generator := pipeline.NewHTTPGenerator(cfg.Pipeline.Endpoint, cfg.Pipeline.APIKey,
		time.Duration(cfg.Pipeline.TimeoutSec)*time.Second)

	var transcriber transcribe.Transcriber
	if cfg.Transcribe.Endpoint != "" {
		transcriber = transcribe.NewHTTPTranscriber(cfg.Transcribe.Endpoint, cfg.Transcribe.APIKey,
			time.Duration(cfg.Transcribe.TimeoutSec)*time.Second)
	}

	msgBus := bus.NewMessageBus()
	coreRouter := router.New(contextMgr, generator, transcriber, msgBus, recallStore)

	// Live connections + widget websocket server
	registry := live.NewRegistry()
	go registry.Sweep(ctx, time.Duration(cfg.Server.SweepIntervalSec)*time.Second)
	liveServer := live.NewServer(registry, coreRouter)

	// Channel adapters
	chMgr := channels.NewManager(msgBus)
	if w := cfg.Channel.Widget; w != nil && w.Enabled {
		chMgr.Register(channels.NewWidgetAdapter(registry, msgBus))
		log.Println("Widget channel enabled")
	}
	if mc := cfg.Channel.Messaging; mc != nil && mc.Endpoint != "" {
		chMgr.Register(channels.NewMessagingAdapter(
			messagingTransport(mc), mc.AllowFrom, msgBus))
		log.Println("Messaging channel enabled")
	}
	if ec := cfg.Channel.Email; ec != nil && ec.SMTPEndpoint != "" {
		chMgr.Register(channels.NewEmailAdapter(
			emailTransport(ec), ec.AllowFrom, msgBus))
		log.Println("Email channel enabled")
	}

	if enabled := chMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %v\n", enabled)
	} else {
		fmt.Println("⚠ No channels enabled")
	}

	// Handover intents are observed, not acted on, by the core.
	msgBus.Subscribe(bus.TopicHandovers, func(payload any) {
		if ev, ok := payload.(bus.HandoverEvent); ok {
			log.Printf("[Handover] 🙋 %s/%s via %s", ev.UserID, ev.SessionID, ev.Channel)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		chMgr.StopAll()
		cancel()
	}()

	// Inbound dispatch: each queued message is routed on its own goroutine.
	go msgBus.DispatchInbound(ctx, func(ctx context.Context, msg bus.InboundMessage) {
		if _, err := coreRouter.Route(ctx, msg); err != nil {
			log.Printf("[Router] Route failed for %s/%s: %v", msg.Channel, msg.UserID, err)
		}
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- liveServer.ListenAndServe(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()
	go func() {
		errCh <- chMgr.StartAll(ctx)
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			cancel()
			return err
		}
	}
	return nil
}
