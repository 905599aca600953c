package main

import (
	"github.com/spf13/cobra"
)

var (
	extractVolumeID string
	extractProfile  string
)

var extractCmd = &cobra.Command{
	Use:   "extract <container>",
	Short: "Extract an EPUB container into a volume workspace",
	Long: `Extract reads an EPUB container and writes its volume workspace:

  <workdir>/<volume-id>/manifest.json
  <workdir>/<volume-id>/source/*.md
  <workdir>/<volume-id>/images/
  <workdir>/<volume-id>/frontmatter/
  <workdir>/<volume-id>/review.yaml

The volume id defaults to the container's filename without extension.
Extracting again replaces the workspace but keeps the translation state
of chapters whose id and title did not change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("profile") {
			a.cfg.Extract.Profile = extractProfile
		}
		p, err := a.pipeline()
		if err != nil {
			return err
		}
		res, err := p.Extract(cmd.Context(), args[0], extractVolumeID)
		if err != nil {
			return err
		}
		a.log.Info("extraction complete",
			"volume_id", res.VolumeID,
			"chapters", res.Chapters,
			"warnings", len(res.Warnings),
			"elapsed", res.Elapsed)
		return a.print(cmd, res)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractVolumeID, "volume-id", "", "volume id (default: container filename)")
	extractCmd.Flags().StringVar(&extractProfile, "profile", "", "force a publisher profile instead of detecting one")
}
