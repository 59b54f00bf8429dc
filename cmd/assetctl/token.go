package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/middleware"
)

var (
	tokenOwners []string
	tokenTTL    time.Duration
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token for the API signed with JWT_SECRET",
	Long: `Issues a bearer token for a calling service. Restrict it to owners with
--owner; without it the token may act for every owner.

Examples:
  assetctl token dashboard
  assetctl token scheduler --owner 123 --owner 456 --ttl 24h`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{offlineAnnotation: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		tok, err := middleware.IssueToken(cfg.JWTSecret, args[0], tokenOwners, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringArrayVar(&tokenOwners, "owner", nil, "Owner id the token may act for (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", middleware.DefaultTokenTTL, "Token lifetime")
}
