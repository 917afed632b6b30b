package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aiuser8/thallos-llm-service/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Long:  `Show the current active configuration, merged from file, environment variables, and defaults.`,
	RunE:  runConfig,
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Println("====================")
	fmt.Println("Active Configuration:")

	fmt.Println("\nDatabase:")
	fmt.Printf("  DSN: %s\n", cfg.Database.DSN)
	fmt.Printf("  Schema file: %s\n", cfg.Database.SchemaFile)
	fmt.Printf("  Max conns: %d\n", cfg.Database.MaxConns)
	fmt.Printf("  Statement timeout: %s\n", cfg.Database.StatementTimeout)

	fmt.Println("\nLLM:")
	if cfg.LLM.APIKey == "" {
		fmt.Println("  API key: (not set, running in fallback-planner mode)")
	} else {
		fmt.Println("  API key: (set)")
	}
	fmt.Printf("  Base URL: %s\n", cfg.LLM.BaseURL)
	fmt.Printf("  Model: %s\n", cfg.LLM.Model)
	fmt.Printf("  Timeout: %s\n", cfg.LLM.Timeout)

	fmt.Println("\nGuard:")
	fmt.Printf("  Default limit: %d\n", cfg.Guard.DefaultLimit)
	fmt.Printf("  Max limit: %d\n", cfg.Guard.MaxLimit)

	fmt.Println("\nServer:")
	fmt.Printf("  Addr: %s\n", cfg.Server.Addr)
	fmt.Printf("  Request deadline: %s\n", cfg.Server.RequestDeadline)
	if cfg.Server.APIKey == "" {
		fmt.Println("  Service key: (not set, same-origin requests only)")
	} else {
		fmt.Println("  Service key: (set)")
	}

	fmt.Println("\nCache:")
	fmt.Printf("  Directory: %s\n", cfg.Cache.Directory)
	fmt.Printf("  Max size: %d MB\n", cfg.Cache.MaxSizeMB)
	fmt.Printf("  TTL: %d minutes\n", cfg.Cache.TTLMinutes)
	fmt.Printf("  Cleanup frequency: %s\n", cfg.Cache.CleanupFreq)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Output: %s\n", cfg.Logging.Output)

	fmt.Println("\nDebug:")
	fmt.Printf("  Enabled: %t\n", cfg.Debug.Enabled)
	fmt.Printf("  Verbose: %t\n", cfg.Debug.Verbose)
	fmt.Printf("  SQL: %t\n", cfg.Debug.SQL)

	if cfg.Debug.Enabled {
		fmt.Println("\nRaw Configuration (JSON):")
		fmt.Println("==========================")

		jsonData, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Println(string(jsonData))
	}

	return nil
}
