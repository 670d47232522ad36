package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
)

// StatusConfig holds configuration for the status command
type StatusConfig struct {
	Source string
	Skills []string
	Tools  []targets.Tool
	Global bool
	Diff   bool
}

// NewStatusConfig creates a new StatusConfig with default values
func NewStatusConfig() *StatusConfig {
	return &StatusConfig{
		Tools: targets.AllTools(),
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare installed skills with their source",
	Long: `Compare installed copies of a source's skills with the source and report
whether each is in sync, modified or missing. Use --diff to print a unified
diff of modified text files.

Examples:
  skillet status
  skillet status --source ../skills --global --diff`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStatus(cmd, getStatusConfigFromFlags(cmd))
	},
}

func init() {
	registerStatusFlags(statusCmd)
	rootCmd.AddCommand(withTracing(statusCmd))
}

// registerStatusFlags registers the status flags on cmd
func registerStatusFlags(cmd *cobra.Command) {
	defaults := NewStatusConfig()
	cmd.Flags().StringP("source", "s", defaults.Source, "Source directory containing skills/ (default: working directory)")
	cmd.Flags().StringSlice("skills", defaults.Skills, "Skills to compare (comma separated names or glob patterns)")
	addToolFlags(cmd)
	cmd.Flags().BoolP("global", "g", defaults.Global, "Compare the per-user skill directories instead of the project ones")
	cmd.Flags().Bool("diff", defaults.Diff, "Print unified diffs for modified skills")
}

// getStatusConfigFromFlags extracts status configuration from command flags
func getStatusConfigFromFlags(cmd *cobra.Command) *StatusConfig {
	config := NewStatusConfig()

	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	if names, err := cmd.Flags().GetStringSlice("skills"); err == nil {
		config.Skills = names
	}
	config.Tools = getToolsFromFlags(cmd)
	if global, err := cmd.Flags().GetBool("global"); err == nil {
		config.Global = global
	}
	if diff, err := cmd.Flags().GetBool("diff"); err == nil {
		config.Diff = diff
	}

	return config
}

func runStatus(cmd *cobra.Command, config *StatusConfig) error {
	p := newPresenter(cmd)

	wd, err := workingDir()
	if err != nil {
		return err
	}
	source, err := resolveSource(config.Source, wd)
	if err != nil {
		return err
	}
	list, err := listSourceSkills(cmd.Context(), source)
	if err != nil {
		return err
	}

	sel := installer.AllSkills()
	if len(config.Skills) > 0 {
		sel, err = selectSkills(cmd, skills.Names(list), config.Skills)
		if err != nil {
			return err
		}
	}

	scope := targets.ScopeProject
	if config.Global {
		scope = targets.ScopeGlobal
	}
	inst, err := installer.New()
	if err != nil {
		return err
	}

	items, err := inst.Status(cmd.Context(), source, sel, targets.Select(config.Tools, scope))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		p.Info(fmt.Sprintf("No skills found in %s", source))
		return nil
	}

	return printStatus(p, items, config.Diff)
}

func printStatus(p presenter.Presenter, items []installer.StatusItem, showDiff bool) error {
	tw := tabwriter.NewWriter(p.Out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTARGET\tSTATE\tCHANGES")
	fmt.Fprintln(tw, "----\t------\t-----\t-------")

	counts := map[installer.State]int{}
	for _, item := range items {
		counts[item.State]++
		changes := "-"
		if len(item.Changes) > 0 {
			changes = strings.Join(item.Changes, " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Name, item.Target, item.State, changes)
	}
	if err := tw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write status")
	}

	if showDiff {
		for _, item := range items {
			if item.Diff == "" {
				continue
			}
			p.Separator()
			p.Section(fmt.Sprintf("%s (%s)", item.Name, item.Target))
			fmt.Fprint(p.Out(), item.Diff)
		}
	}

	p.Summary(
		presenter.Count{Label: "in sync", N: counts[installer.StateInSync]},
		presenter.Count{Label: "modified", N: counts[installer.StateModified]},
		presenter.Count{Label: "missing", N: counts[installer.StateMissing]},
		presenter.Count{Label: "not found", N: counts[installer.StateNotFound]},
	)
	return nil
}
