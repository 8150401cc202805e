package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/memory/durable"
	"github.com/relaydesk/relaydesk/internal/redisconn"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relaydesk status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("🛎 relaydesk Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Memory window: %d turns, cache TTL %dh (%s driver)\n",
		cfg.Memory.Window, cfg.Memory.TTLHours, cfg.Memory.CacheDriver)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.Memory.CacheDriver == "redis" {
		if client, err := redisconn.New(cfg.Redis); err != nil {
			fmt.Printf("Redis: ❌ %v\n", err)
		} else {
			client.Close()
			fmt.Println("Redis: ✓")
		}
	}

	if cfg.Durable.BaseURL != "" {
		client := durable.NewClient(cfg.Durable.BaseURL, cfg.Durable.APIKey,
			time.Duration(cfg.Durable.TimeoutSec)*time.Second)
		if err := client.Health(ctx); err != nil {
			fmt.Printf("Durable store: ❌ %v\n", err)
		} else {
			fmt.Println("Durable store: ✓")
		}
	} else {
		fmt.Println("Durable store: not configured")
	}

	fmt.Println("\nChannels:")
	if w := cfg.Channel.Widget; w != nil && w.Enabled {
		fmt.Println("  Widget: ✓")
	}
	if m := cfg.Channel.Messaging; m != nil && m.Endpoint != "" {
		fmt.Println("  Messaging: ✓")
	}
	if e := cfg.Channel.Email; e != nil && e.SMTPEndpoint != "" {
		fmt.Println("  Email: ✓")
	}

	return nil
}
