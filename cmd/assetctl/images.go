package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/provision"
)

var (
	uploadMarkAsUsed bool
	claimsLimit      int
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <ownerId> <keyword> <file>...",
	Short: "Store client images for an owner and keyword",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]provision.UploadFile, 0, len(args)-2)
		for _, p := range args[2:] {
			files = append(files, provision.UploadFile{Name: filepath.Base(p), Path: p})
		}
		urls, err := deps.Service.SaveImages(cmd.Context(), provision.SaveRequest{
			OwnerID:    args[0],
			Topic:      args[1],
			Files:      files,
			MarkAsUsed: uploadMarkAsUsed,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), urls)
	},
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list <folder>",
	Short:   "List client image URLs below a folder such as \"123/coffee shop\"",
	Aliases: []string{"ls"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := deps.Service.ListImages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, u := range urls {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <url-or-key>...",
	Short:   "Delete images by public URL or bucket key",
	Aliases: []string{"rm"},
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := deps.Service.DeleteImages(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, k := range deleted {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		if len(deleted) < len(args) {
			return fmt.Errorf("deleted %d of %d images", len(deleted), len(args))
		}
		return nil
	},
}

// claimsCmd represents the claims command
var claimsCmd = &cobra.Command{
	Use:   "claims <ownerId>",
	Short: "Show the most recently provisioned images of an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := deps.Service.ListClaims(cmd.Context(), args[0], claimsLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadMarkAsUsed, "used", false, "Store the images already marked as used")
	claimsCmd.Flags().IntVarP(&claimsLimit, "limit", "n", 0, "Maximum entries (default 50)")
}
