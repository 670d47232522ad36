package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillet/pkg/analyze"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/telemetry"
)

// CheckConfig holds configuration for the check command
type CheckConfig struct {
	Source string
}

// NewCheckConfig creates a new CheckConfig with default values
func NewCheckConfig() *CheckConfig {
	return &CheckConfig{}
}

var checkCmd = &cobra.Command{
	Use:   "check [skill-dir...]",
	Short: "Run structural checks on skills",
	Long: `Run mechanical checks on skill directories: frontmatter fields, size,
extraneous files, relative link integrity, unlinked reference files and
scripts (executable bit and shell syntax).

Exits non-zero when any check fails. Warnings do not affect the exit code.

Examples:
  skillet check skills/pdf
  skillet check --source .`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getCheckConfigFromFlags(cmd)
		dirs, err := checkDirs(cmd, config, args)
		if err != nil {
			return err
		}
		return runCheck(cmd.Context(), newPresenter(cmd), dirs)
	},
}

func init() {
	defaults := NewCheckConfig()
	checkCmd.Flags().StringP("source", "s", defaults.Source, "Check every skill of this source")

	rootCmd.AddCommand(withTracing(checkCmd))
}

// getCheckConfigFromFlags extracts check configuration from command flags
func getCheckConfigFromFlags(cmd *cobra.Command) *CheckConfig {
	config := NewCheckConfig()
	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	return config
}

func checkDirs(cmd *cobra.Command, config *CheckConfig, args []string) ([]string, error) {
	dirs := append([]string{}, args...)
	if config.Source != "" {
		source, err := resolveSource(config.Source, "")
		if err != nil {
			return nil, err
		}
		list, err := listSourceSkills(cmd.Context(), source)
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			dirs = append(dirs, s.Directory)
		}
	}
	if len(dirs) == 0 {
		return nil, newUsageError(cmd, "specify at least one skill directory or --source")
	}
	return dirs, nil
}

func runCheck(ctx context.Context, p presenter.Presenter, dirs []string) error {
	failed := 0
	for i, dir := range dirs {
		var report *analyze.Report
		err := telemetry.WithSpan(ctx, "analyze.skill", func(ctx context.Context) error {
			var err error
			report, err = analyze.Analyze(ctx, dir)
			return err
		}, attribute.String("skill.dir", dir))
		if err != nil {
			return err
		}

		if i > 0 {
			p.Separator()
		}
		if err := report.Format(p.Out()); err != nil {
			return errors.Wrap(err, "failed to write report")
		}
		if report.Failed() {
			failed++
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d skill(s) failed checks", failed, len(dirs))
	}
	return nil
}
