package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tsawler/epubkit/config"
	"github.com/tsawler/epubkit/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect publisher profiles",
}

type profileSummary struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Generic     bool     `json:"generic,omitempty" yaml:"generic,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Source      string   `json:"source" yaml:"source"`
}

func summarize(p *profile.Profile) profileSummary {
	return profileSummary{
		Name:        p.Name,
		Description: p.Description,
		Generic:     p.Generic,
		Aliases:     p.Aliases,
		Source:      p.Source,
	}
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		var out []profileSummary
		for _, p := range a.profiles.Profiles() {
			out = append(out, summarize(p))
		}
		return a.print(cmd, out)
	},
}

type validation struct {
	File  string `json:"file" yaml:"file"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate profile files against the profile schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		var (
			out    []validation
			failed int
		)
		for _, f := range args {
			v := validation{File: f}
			data, err := os.ReadFile(f)
			if err == nil {
				var p *profile.Profile
				if p, err = profile.Parse(data, filepath.Base(f)); err == nil {
					v.Name = p.Name
				}
			}
			if err != nil {
				v.Error = err.Error()
				failed++
			}
			out = append(out, v)
		}
		if err := a.print(cmd, out); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d profile files invalid", failed, len(args))
		}
		return nil
	},
}

type detection struct {
	Publisher string `json:"publisher" yaml:"publisher"`
	Profile   string `json:"profile" yaml:"profile"`
	Alias     string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Fallback  bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

var profilesMatchCmd = &cobra.Command{
	Use:   "match <publisher>",
	Short: "Show which profile a publisher string selects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		d := a.profiles.Detect(args[0])
		return a.print(cmd, detection{
			Publisher: args[0],
			Profile:   d.Profile.Name,
			Alias:     d.Alias,
			Fallback:  d.Fallback,
		})
	},
}

var profilesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the profile directory on change and report the result",
	Long: `Watch keeps the profile directory and the config file under
observation and logs every reload, so profile authors can see validation
errors as they edit. It runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		a.profiles.OnReload(func(s *profile.Store) {
			a.log.Info("profiles active", "count", len(s.Profiles()))
		})
		if a.mgr.File() != "" {
			a.mgr.OnChange(func(c *config.Config) {
				a.log.Info("config reloaded", "file", a.mgr.File(), "profiles_dir", c.ProfilesDir)
			})
			a.mgr.WatchConfig()
		}
		ctx := cmd.Context()
		if err := a.profiles.Watch(ctx); err != nil {
			return err
		}
		a.log.Info("watching profiles", "dir", a.cfg.ProfilesDir)
		<-ctx.Done()
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesValidateCmd, profilesMatchCmd, profilesWatchCmd)
}
