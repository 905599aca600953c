package main

import (
	"github.com/spf13/cobra"

	"github.com/tsawler/epubkit/model"
)

var namesAll bool

type namesReport struct {
	VolumeID  string                            `json:"volume_id" yaml:"volume_id"`
	Roster    []model.RubyAnnotation            `json:"roster" yaml:"roster"`
	Stylistic []model.RubyAnnotation            `json:"stylistic,omitempty" yaml:"stylistic,omitempty"`
	Fragments map[string][]model.RubyAnnotation `json:"fragments,omitempty" yaml:"fragments,omitempty"`
	Rejected  []model.RubyAnnotation            `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

var namesCmd = &cobra.Command{
	Use:   "names <volume-id>",
	Short: "Print the character roster extracted from ruby annotations",
	Long: `Names prints the name roster recorded in a volume's manifest. With --all
it also prints the stylistic, fragment and rejected annotations from the
review report.`,
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
		m, err := p.LoadManifest(args[0])
		if err != nil {
			return err
		}
		rep := namesReport{VolumeID: m.VolumeID, Roster: m.RubyNames}
		if rep.Roster == nil {
			rep.Roster = []model.RubyAnnotation{}
		}
		if namesAll {
			rev, err := p.LoadReview(args[0])
			if err != nil {
				return err
			}
			rep.Stylistic = rev.Stylistic
			rep.Fragments = rev.Fragments
			rep.Rejected = rev.Rejected
		}
		return a.print(cmd, rep)
	},
}

func init() {
	namesCmd.Flags().BoolVar(&namesAll, "all", false, "include stylistic, fragment and rejected annotations")
}
