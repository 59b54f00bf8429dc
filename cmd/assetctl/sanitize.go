package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/keycodec"
)

var sanitizePath bool

// sanitizeCmd represents the sanitize command
var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <text>...",
	Short: "Print the storage key segment for an owner id or topic",
	Long: `Prints the key segment the service derives from free text, which is where
images for that owner or topic are stored.

Examples:
  assetctl sanitize "Coffee Shop!"      # coffee_shop_
  assetctl sanitize --path "123/Scooter Rental"`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{offlineAnnotation: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		in := strings.Join(args, " ")
		if sanitizePath {
			fmt.Fprintln(cmd.OutOrStdout(), keycodec.SanitizePath(in))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), keycodec.Sanitize(in))
		return nil
	},
}

func init() {
	sanitizeCmd.Flags().BoolVarP(&sanitizePath, "path", "p", false, "Sanitize each \"/\" segment separately")
}
