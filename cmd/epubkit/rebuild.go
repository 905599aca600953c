package main

import (
	"github.com/spf13/cobra"

	"github.com/tsawler/epubkit/pipeline"
)

var (
	rebuildOutput string
	rebuildLang   string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <volume-id>",
	Short: "Assemble an EPUB container from a volume workspace",
	Long: `Rebuild assembles a validated EPUB container from a volume workspace.

With --lang, chapters are read from translated/<lang>/ where a file exists
and the metadata_<lang> block of the manifest is used; chapters without a
translation fall back to their source file. The container is written to
<workdir>/<volume-id>/output/.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		p, err := a.pipeline()
		if err != nil {
			return err
		}
		res, err := p.Rebuild(cmd.Context(), args[0], pipeline.RebuildOptions{
			Lang:   rebuildLang,
			Output: rebuildOutput,
		})
		if err != nil {
			return err
		}
		a.log.Info("rebuild complete", "volume_id", res.VolumeID, "path", res.Path, "bytes", res.Bytes)
		return a.print(cmd, res)
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildOutput, "output-name", "", "container filename (default: <volume-id>[_<lang>].epub)")
	rebuildCmd.Flags().StringVar(&rebuildLang, "lang", "", "target language of translated chapters")
}
