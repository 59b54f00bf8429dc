package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/provision"
)

var (
	provisionReq       provision.Request
	provisionKeepLocal bool
	provisionOutput    string
)

// provisionCmd represents the provision command
var provisionCmd = &cobra.Command{
	Use:   "provision <ownerId> <topic>",
	Short: "Return an unused image for an owner and topic, generating one if needed",
	Long: `Claims an unused client image, then an unused AI image, and generates a new
image when neither tier has one left. The result is printed as JSON.

Examples:
  assetctl provision 123 "Coffee Shop"
  assetctl provision 123 "Coffee Shop" --size large --style "Warm and cozy"
  assetctl provision 123 "Coffee Shop" --output ./coffee.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runProvision,
}

func init() {
	f := provisionCmd.Flags()
	f.IntVar(&provisionReq.Count, "count", 1, "Images to request from the provider")
	f.StringVar(&provisionReq.Size, "size", "", "SMALL, MEDIUM, LARGE or a pixel size")
	f.StringVar(&provisionReq.Country, "country", "", "Country shown in the prompt")
	f.StringVar(&provisionReq.CompanyName, "company", "", "Company name shown in the prompt")
	f.StringVar(&provisionReq.Style, "style", "", "Image style")
	f.StringVar(&provisionReq.Mood, "mood", "", "Image mood")
	f.StringVar(&provisionReq.AdditionalContext, "context", "", "Extra keywords for the prompt")
	f.BoolVar(&provisionKeepLocal, "keep-local", false, "Keep the generated temp file and print its path")
	f.StringVarP(&provisionOutput, "output", "o", "", "Copy a newly generated image to this path")
}

func runProvision(cmd *cobra.Command, args []string) error {
	req := provisionReq
	req.OwnerID, req.Topic = args[0], args[1]
	req.KeepLocal = provisionKeepLocal || provisionOutput != ""

	res, err := deps.Service.Provision(cmd.Context(), req)
	if err != nil {
		return err
	}

	if provisionOutput != "" && res.LocalPath != "" {
		if err := exportImage(deps.Service, res.LocalPath, provisionOutput, provisionKeepLocal); err != nil {
			return err
		}
	}

	out := struct {
		*provision.Result
		LocalPath string `json:"localPath,omitempty"`
	}{Result: res}
	if provisionKeepLocal {
		out.LocalPath = res.LocalPath
	}
	return printJSON(cmd.OutOrStdout(), out)
}

type localReleaser interface {
	ReleaseLocal(path string) error
}

// exportImage copies the generated file at localPath to dst. Unless keep is
// set the temp file is released afterwards, also when the copy fails.
func exportImage(rel localReleaser, localPath, dst string, keep bool) error {
	if !keep {
		defer func() {
			if err := rel.ReleaseLocal(localPath); err != nil {
				log.Warn().Err(err).Str("path", localPath).Msg("failed to release temp image")
			}
		}()
	}
	if err := copyFile(localPath, dst); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
