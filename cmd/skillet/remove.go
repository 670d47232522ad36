package main

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/targets"
	"github.com/jingkaihe/skillet/pkg/tui"
)

// RemoveConfig holds configuration for the remove command
type RemoveConfig struct {
	Skills []string
	All    bool
	Tools  []targets.Tool
	List   bool
	Global bool
	DryRun bool
}

// NewRemoveConfig creates a new RemoveConfig with default values
func NewRemoveConfig() *RemoveConfig {
	return &RemoveConfig{
		Tools: targets.AllTools(),
	}
}

// Scope returns the removal scope. Project is the default.
func (c *RemoveConfig) Scope() targets.Scope {
	if c.Global {
		return targets.ScopeGlobal
	}
	return targets.ScopeProject
}

// Validate rejects contradictory flags
func (c *RemoveConfig) Validate(cmd *cobra.Command) error {
	if c.All && len(c.Skills) > 0 {
		return newUsageError(cmd, "--skills and --all cannot be used together")
	}
	return nil
}

var removeCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm"},
	Short:   "Remove installed skills",
	Long: `Remove installed skills from the project skill directories, or from the
per-user ones with --global. Directories left empty are cleaned up.

Examples:
  skillet remove --list
  skillet remove --skills pdf,docx
  skillet remove --skills 'git-*' --codex
  skillet remove --all --global`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getRemoveConfigFromFlags(cmd)
		if err := config.Validate(cmd); err != nil {
			return err
		}

		inst, err := installer.New(installer.WithDryRun(config.DryRun))
		if err != nil {
			return err
		}
		tgts := targets.Select(config.Tools, config.Scope())

		p := newPresenter(cmd)
		if config.List {
			return runListInstalled(p, inst, tgts)
		}
		return runRemove(cmd, p, inst, tgts, config)
	},
}

func init() {
	registerRemoveFlags(removeCmd)
	rootCmd.AddCommand(withTracing(removeCmd))
}

// registerRemoveFlags registers the remove flags on cmd
func registerRemoveFlags(cmd *cobra.Command) {
	defaults := NewRemoveConfig()
	cmd.Flags().StringSlice("skills", defaults.Skills, "Skills to remove (comma separated names or glob patterns)")
	cmd.Flags().Bool("all", defaults.All, "Remove every installed skill")
	addToolFlags(cmd)
	cmd.Flags().Bool("list", defaults.List, "List installed skills")
	cmd.Flags().BoolP("global", "g", defaults.Global, "Use the per-user skill directories instead of the project ones")
	cmd.Flags().Bool("dry-run", defaults.DryRun, "Show what would be removed without touching the filesystem")
}

// getRemoveConfigFromFlags extracts remove configuration from command flags
func getRemoveConfigFromFlags(cmd *cobra.Command) *RemoveConfig {
	config := NewRemoveConfig()

	if names, err := cmd.Flags().GetStringSlice("skills"); err == nil {
		config.Skills = names
	}
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
	}
	config.Tools = getToolsFromFlags(cmd)
	if list, err := cmd.Flags().GetBool("list"); err == nil {
		config.List = list
	}
	if global, err := cmd.Flags().GetBool("global"); err == nil {
		config.Global = global
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}

	return config
}

func runListInstalled(p presenter.Presenter, inst *installer.Installer, tgts []targets.Target) error {
	for i, t := range tgts {
		names, err := inst.ListInstalled(t)
		if err != nil {
			return err
		}
		if i > 0 {
			p.Info("")
		}
		p.Section(targets.Describe(t))
		if len(names) == 0 {
			p.Info("  (none)")
			continue
		}
		for _, name := range names {
			fmt.Fprintf(p.Out(), "  %s\n", name)
		}
	}
	return nil
}

// installedUnion returns every skill installed in any of tgts, sorted
func installedUnion(inst *installer.Installer, tgts []targets.Target) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, t := range tgts {
		installed, err := inst.ListInstalled(t)
		if err != nil {
			return nil, err
		}
		for _, name := range installed {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func runRemove(cmd *cobra.Command, p presenter.Presenter, inst *installer.Installer, tgts []targets.Target, config *RemoveConfig) error {
	ctx := cmd.Context()

	var sel installer.Selection
	switch {
	case config.All:
		sel = installer.AllSkills()
	case len(config.Skills) > 0:
		installed, err := installedUnion(inst, tgts)
		if err != nil {
			return err
		}
		sel, err = selectSkills(cmd, installed, config.Skills)
		if err != nil {
			return err
		}
	case isInteractive():
		installed, err := installedUnion(inst, tgts)
		if err != nil {
			return err
		}
		if len(installed) == 0 {
			p.Info("No skills installed")
			return nil
		}
		items := make([]tui.Item, 0, len(installed))
		for _, name := range installed {
			items = append(items, tui.Item{Name: name})
		}
		picked, err := pickSkills(ctx, "Select skills to remove", items, descriptionWidth())
		if errors.Is(err, tui.ErrCancelled) || (err == nil && len(picked) == 0) {
			p.Warning("No skills selected, nothing to do")
			return nil
		}
		if err != nil {
			return err
		}
		sel = installer.Named(picked...)
	default:
		return newUsageError(cmd, "specify --skills or --all (interactive selection needs a terminal)")
	}

	report, err := inst.Remove(ctx, tgts, sel)
	if err != nil {
		return err
	}
	return printRemovalReport(p, report)
}
