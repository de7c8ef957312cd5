// Package main provides the CLI entry point for the aide personal assistant.
//
// Aide connects messaging platforms (Telegram, Discord, Slack) and a local
// canvas to LLM providers (Anthropic, OpenAI) through a tool-using agent
// loop with bounded session memory, cron scheduling, and answer
// verification.
//
// # Basic Usage
//
// Start the server:
//
//	aide serve --config aide.yaml
//
// Inspect the configuration schema:
//
//	aide schema
//
// Manage the cron job file:
//
//	aide jobs list
//	aide jobs validate
//
// # Environment Variables
//
//   - AIDE_CONFIG: Path to configuration file (default: aide.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aide/internal/config"
)

// defaultConfigName is the config file serve looks for when no flag or
// environment override is given.
const defaultConfigName = "aide.yaml"

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Structured JSON logging by default; serve replaces this with the
	// configured logger once the config file is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aide",
		Short: "aide - personal AI assistant gateway",
		Long: `Aide connects messaging platforms and a visual canvas to LLM providers
through a tool-using agent loop.

Supported channels: Telegram, Discord, Slack, canvas (WebSocket)
Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
		buildSchemaCmd(),
		buildJobsCmd(),
	)

	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "aide %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
			return nil
		},
	}
}

func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		Long:  "Print the JSON schema for the aide configuration file, for editor completion and CI validation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

// resolveConfigPath applies the AIDE_CONFIG override when the flag was left
// at its default.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == defaultConfigName {
		if env := strings.TrimSpace(os.Getenv("AIDE_CONFIG")); env != "" {
			return env
		}
		return defaultConfigName
	}
	return path
}
