package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
)

// UsageError is a problem with how a command was invoked. It is reported
// before any filesystem change is made.
type UsageError struct {
	command string
	msg     string
}

func (e *UsageError) Error() string {
	return e.msg
}

func newUsageError(cmd *cobra.Command, format string, args ...any) error {
	return &UsageError{command: cmd.CommandPath(), msg: fmt.Sprintf(format, args...)}
}

func newPresenter(cmd *cobra.Command) *presenter.TerminalPresenter {
	p := presenter.NewWithOptions(cmd.OutOrStdout(), cmd.ErrOrStderr(), presenter.DetectColorMode(viper.GetString("color")))
	p.SetQuiet(viper.GetBool("quiet"))
	return p
}

func descriptionWidth() int {
	if w := viper.GetInt("description_width"); w > 0 {
		return w
	}
	return skills.DefaultDescriptionWidth
}

// addToolFlags registers --claude and --codex
func addToolFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("claude", false, "Target Claude (.claude/skills)")
	cmd.Flags().Bool("codex", false, "Target Codex (.agents/skills)")
}

// getToolsFromFlags returns the tools named by --claude/--codex. No tool flag
// means every tool.
func getToolsFromFlags(cmd *cobra.Command) []targets.Tool {
	var tools []targets.Tool
	if claude, err := cmd.Flags().GetBool("claude"); err == nil && claude {
		tools = append(tools, targets.ToolClaude)
	}
	if codex, err := cmd.Flags().GetBool("codex"); err == nil && codex {
		tools = append(tools, targets.ToolCodex)
	}
	if len(tools) == 0 {
		return targets.AllTools()
	}
	return tools
}

// resolveSource returns the absolute source directory: the flag value, the
// configured source, or fallback when both are empty
func resolveSource(flagValue, fallback string) (string, error) {
	source := flagValue
	if source == "" {
		source = viper.GetString("source")
	}
	if source == "" {
		source = fallback
	}
	if source == "" {
		return "", nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve source %s", source)
	}
	return abs, nil
}

func workingDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	return wd, nil
}

// listSourceSkills lists the skills of source, turning a missing skills/
// directory into installer.ErrSourceNotFound
func listSourceSkills(ctx context.Context, source string) ([]skills.Skill, error) {
	if err := installer.CheckSource(source); err != nil {
		return nil, err
	}
	return skills.ListSkills(ctx, source)
}

// selectSkills expands --skills patterns against the available names. A value
// that names no skill at all, such as "--skills ,", is a usage error rather
// than an empty selection.
func selectSkills(cmd *cobra.Command, available, patterns []string) (installer.Selection, error) {
	names, err := skills.Select(available, patterns)
	if err != nil {
		return installer.Selection{}, newUsageError(cmd, "%v", err)
	}
	if len(names) == 0 {
		return installer.Selection{}, newUsageError(cmd, "--skills names no skill")
	}
	return installer.Named(names...), nil
}

func describeTargets(tgts []targets.Target) string {
	parts := make([]string, 0, len(tgts))
	for _, t := range tgts {
		parts = append(parts, targets.Describe(t))
	}
	return strings.Join(parts, ", ")
}

func printSyncReport(p presenter.Presenter, source string, report *installer.SyncReport) error {
	for _, item := range report.Items {
		switch item.Outcome {
		case installer.OutcomeAdded:
			if report.DryRun {
				p.Success(fmt.Sprintf("Would add '%s' to %s", item.Name, item.Path))
			} else {
				p.Success(fmt.Sprintf("Added '%s' to %s", item.Name, item.Path))
			}
		case installer.OutcomeSkipped:
			p.Warning(fmt.Sprintf("Skipped '%s': already exists in %s (use --force to overwrite)", item.Name, item.Path))
		case installer.OutcomeNotFound:
			p.Warning(fmt.Sprintf("Skill '%s' not found in %s", item.Name, filepath.Join(source, skills.SourceSubdir)))
		case installer.OutcomeFailed:
			p.Error(item.Err, fmt.Sprintf("Failed to add '%s' to %s", item.Name, item.Path))
		}
	}

	if report.Interrupted {
		p.Warning("Interrupted before every skill was processed")
	}
	p.Summary(
		presenter.Count{Label: "added", N: report.Added},
		presenter.Count{Label: "skipped", N: report.Skipped},
		presenter.Count{Label: "not found", N: report.NotFound},
		presenter.Count{Label: "failed", N: report.Failed},
	)

	if err := report.Err(); err != nil {
		return errors.Wrapf(err, "%d skill(s) failed to install", report.Failed)
	}
	return nil
}

func printRemovalReport(p presenter.Presenter, report *installer.RemovalReport) error {
	for _, item := range report.Items {
		switch item.Outcome {
		case installer.OutcomeRemoved:
			if report.DryRun {
				p.Success(fmt.Sprintf("Would remove '%s' from %s", item.Name, item.Path))
			} else {
				p.Success(fmt.Sprintf("Removed '%s' from %s", item.Name, item.Path))
			}
		case installer.OutcomeNotFound:
			p.Warning(fmt.Sprintf("Skill '%s' not found in %s", item.Name, filepath.Dir(item.Path)))
		case installer.OutcomeFailed:
			p.Error(item.Err, fmt.Sprintf("Failed to remove '%s' from %s", item.Name, item.Path))
		}
	}

	if report.Interrupted {
		p.Warning("Interrupted before every skill was processed")
	}
	p.Summary(
		presenter.Count{Label: "removed", N: report.Removed},
		presenter.Count{Label: "not found", N: report.NotFound},
		presenter.Count{Label: "failed", N: report.Failed},
	)

	if err := report.Err(); err != nil {
		return errors.Wrapf(err, "%d skill(s) failed to remove", report.Failed)
	}
	return nil
}
