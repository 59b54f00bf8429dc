package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/app"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/logger"
)

var (
	// Wired in PersistentPreRunE for commands that touch storage.
	deps *app.App
	log  zerolog.Logger

	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetctl",
	Short: "Provision and maintain marketing images",
	Long: `assetctl talks to the same storage, generator and claim ledger as the API
server, configured through the same environment variables (and .env file).`,
	SilenceUsage:       true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: closeApp,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr while running")

	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// offline commands skip dependency wiring.
const offlineAnnotation = "offline"

func initializeApp(cmd *cobra.Command, args []string) error {
	if _, ok := cmd.Annotations[offlineAnnotation]; ok {
		return nil
	}

	cfg := config.Load()
	log = zerolog.Nop()
	if verbose {
		log = logger.NewWithWriter(cfg.AppEnv, os.Stderr)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	deps = a
	return nil
}

func closeApp(cmd *cobra.Command, args []string) error {
	if deps == nil {
		return nil
	}
	err := deps.Close()
	deps = nil
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
