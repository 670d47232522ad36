package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
)

// InstallConfig holds configuration for the install command
type InstallConfig struct {
	Global    bool
	Project   bool
	Tools     []targets.Tool
	Uninstall bool
	Force     bool
	Source    string
	DryRun    bool
}

// NewInstallConfig creates a new InstallConfig with default values
func NewInstallConfig() *InstallConfig {
	return &InstallConfig{
		Tools: targets.AllTools(),
	}
}

// Scope returns the install scope. Global is the default.
func (c *InstallConfig) Scope() targets.Scope {
	if c.Project {
		return targets.ScopeProject
	}
	return targets.ScopeGlobal
}

// Validate rejects contradictory flags
func (c *InstallConfig) Validate(cmd *cobra.Command) error {
	if c.Global && c.Project {
		return newUsageError(cmd, "--global and --project cannot be used together")
	}
	return nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install every skill of a source",
	Long: `Install every skill found under <source>/skills into the selected tools.

Skills are installed globally (~/.claude/skills, ~/.agents/skills) unless
--project is given. Skills that are already installed are skipped unless
--force is set. With --uninstall the source's skills are removed instead.

Examples:
  skillet install
  skillet install --project --claude
  skillet install --source ~/src/my-skills --force
  skillet install --uninstall --codex`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getInstallConfigFromFlags(cmd)
		if err := config.Validate(cmd); err != nil {
			return err
		}
		return runInstall(cmd, config)
	},
}

func init() {
	registerInstallFlags(installCmd)
	rootCmd.AddCommand(withTracing(installCmd))
}

// registerInstallFlags registers the install flags on cmd
func registerInstallFlags(cmd *cobra.Command) {
	defaults := NewInstallConfig()
	cmd.Flags().BoolP("global", "g", defaults.Global, "Install into the per-user skill directories (default)")
	cmd.Flags().BoolP("project", "p", defaults.Project, "Install into the skill directories of the working directory")
	addToolFlags(cmd)
	cmd.Flags().Bool("all", false, "Target every tool (default when no tool flag is given)")
	cmd.Flags().Bool("uninstall", defaults.Uninstall, "Remove the source's skills instead of installing them")
	cmd.Flags().BoolP("force", "f", defaults.Force, "Overwrite skills that are already installed")
	cmd.Flags().StringP("source", "s", defaults.Source, "Source directory containing skills/ (default: working directory)")
	cmd.Flags().Bool("dry-run", defaults.DryRun, "Show what would change without touching the filesystem")
}

// getInstallConfigFromFlags extracts install configuration from command flags
func getInstallConfigFromFlags(cmd *cobra.Command) *InstallConfig {
	config := NewInstallConfig()

	if global, err := cmd.Flags().GetBool("global"); err == nil {
		config.Global = global
	}
	if project, err := cmd.Flags().GetBool("project"); err == nil {
		config.Project = project
	}
	config.Tools = getToolsFromFlags(cmd)
	if all, err := cmd.Flags().GetBool("all"); err == nil && all {
		config.Tools = targets.AllTools()
	}
	if uninstall, err := cmd.Flags().GetBool("uninstall"); err == nil {
		config.Uninstall = uninstall
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}

	return config
}

func runInstall(cmd *cobra.Command, config *InstallConfig) error {
	ctx := cmd.Context()
	p := newPresenter(cmd)

	wd, err := workingDir()
	if err != nil {
		return err
	}
	source, err := resolveSource(config.Source, wd)
	if err != nil {
		return err
	}

	list, err := listSourceSkills(ctx, source)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return newUsageError(cmd, "no skills found in %s", source)
	}

	inst, err := installer.New(installer.WithForce(config.Force), installer.WithDryRun(config.DryRun))
	if err != nil {
		return err
	}
	tgts := targets.Select(config.Tools, config.Scope())
	names := skills.Names(list)

	logger.G(ctx).WithField("source", source).WithField("skills", len(names)).
		WithField("uninstall", config.Uninstall).Debug("running install")

	if config.Uninstall {
		p.Info(fmt.Sprintf("Removing %d skill(s) of %s from %s", len(names), source, describeTargets(tgts)))
		report, err := inst.Remove(ctx, tgts, installer.Named(names...))
		if err != nil {
			return err
		}
		return printRemovalReport(p, report)
	}

	p.Info(fmt.Sprintf("Installing %d skill(s) from %s into %s", len(names), source, describeTargets(tgts)))
	report, err := inst.Add(ctx, source, installer.Named(names...), tgts)
	if err != nil {
		return err
	}
	return printSyncReport(p, source, report)
}
