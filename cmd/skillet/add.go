package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
	"github.com/jingkaihe/skillet/pkg/tui"
)

var (
	isInteractive = tui.IsInteractive
	pickSkills    = tui.Pick
)

// AddConfig holds configuration for the add command
type AddConfig struct {
	Source     string
	Skills     []string
	All        bool
	Tools      []targets.Tool
	Force      bool
	Discover   bool
	List       bool
	SearchPath string
	DryRun     bool
}

// NewAddConfig creates a new AddConfig with default values
func NewAddConfig() *AddConfig {
	return &AddConfig{
		Tools: targets.AllTools(),
	}
}

// Validate rejects contradictory flags
func (c *AddConfig) Validate(cmd *cobra.Command) error {
	if c.All && len(c.Skills) > 0 {
		return newUsageError(cmd, "--skills and --all cannot be used together")
	}
	if !c.Discover && c.Source == "" {
		return newUsageError(cmd, "--source is required")
	}
	return nil
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add skills from a source to the current project",
	Long: `Add skills from a source directory into the project skill directories
(./.claude/skills and ./.agents/skills).

--skills takes a comma separated list of names or glob patterns. Without
--skills or --all an interactive picker is shown when running in a terminal.

Examples:
  skillet add --discover
  skillet add --source ../skills --list
  skillet add --source ../skills --skills pdf,docx --claude
  skillet add --source ../skills --skills 'git-*' --force
  skillet add --source ../skills --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getAddConfigFromFlags(cmd)
		if err := config.Validate(cmd); err != nil {
			return err
		}

		p := newPresenter(cmd)
		switch {
		case config.Discover:
			return runDiscover(cmd, p, config)
		case config.List:
			return runListSource(cmd.Context(), p, config.Source)
		default:
			return runAdd(cmd, p, config)
		}
	},
}

func init() {
	registerAddFlags(addCmd)
	rootCmd.AddCommand(withTracing(addCmd))
}

// registerAddFlags registers the add flags on cmd
func registerAddFlags(cmd *cobra.Command) {
	defaults := NewAddConfig()
	cmd.Flags().StringP("source", "s", defaults.Source, "Source directory containing skills/")
	cmd.Flags().StringSlice("skills", defaults.Skills, "Skills to add (comma separated names or glob patterns)")
	cmd.Flags().Bool("all", defaults.All, "Add every skill of the source")
	addToolFlags(cmd)
	cmd.Flags().BoolP("force", "f", defaults.Force, "Overwrite skills that are already installed")
	cmd.Flags().Bool("discover", defaults.Discover, "List skill sources next to the working directory")
	cmd.Flags().Bool("list", defaults.List, "List the skills of --source")
	cmd.Flags().String("search-path", defaults.SearchPath, "Directory whose children are searched by --discover (default: parent of the working directory)")
	cmd.Flags().Bool("dry-run", defaults.DryRun, "Show what would change without touching the filesystem")
}

// getAddConfigFromFlags extracts add configuration from command flags
func getAddConfigFromFlags(cmd *cobra.Command) *AddConfig {
	config := NewAddConfig()

	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	if config.Source == "" {
		config.Source = viper.GetString("source")
	}
	if names, err := cmd.Flags().GetStringSlice("skills"); err == nil {
		config.Skills = names
	}
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
	}
	config.Tools = getToolsFromFlags(cmd)
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if discover, err := cmd.Flags().GetBool("discover"); err == nil {
		config.Discover = discover
	}
	if list, err := cmd.Flags().GetBool("list"); err == nil {
		config.List = list
	}
	if searchPath, err := cmd.Flags().GetString("search-path"); err == nil {
		config.SearchPath = searchPath
	}
	if config.SearchPath == "" {
		config.SearchPath = viper.GetString("search_path")
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}

	return config
}

func runDiscover(cmd *cobra.Command, p presenter.Presenter, config *AddConfig) error {
	wd, err := workingDir()
	if err != nil {
		return err
	}
	searchPath := config.SearchPath
	if searchPath == "" {
		searchPath = filepath.Dir(wd)
	}

	sources, err := skills.FindSources(cmd.Context(), searchPath, wd)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		p.Info(fmt.Sprintf("No skill sources found in %s or %s", searchPath, wd))
		return nil
	}

	tw := tabwriter.NewWriter(p.Out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSKILLS")
	fmt.Fprintln(tw, "------\t------")
	for _, source := range sources {
		list, err := skills.ListSkills(cmd.Context(), source.Path)
		if err != nil {
			p.Error(err, fmt.Sprintf("Failed to list skills of %s", source.Path))
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\n", source.Path, len(list))
	}
	if err := tw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write source list")
	}

	if !p.IsQuiet() {
		fmt.Fprintf(p.Out(), "\nUse '%s --source <dir> --list' to see the skills of a source.\n", cmd.CommandPath())
	}
	return nil
}

func runListSource(ctx context.Context, p presenter.Presenter, sourceFlag string) error {
	source, err := resolveSource(sourceFlag, "")
	if err != nil {
		return err
	}
	list, err := listSourceSkills(ctx, source)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		p.Info(fmt.Sprintf("No skills found in %s", filepath.Join(source, skills.SourceSubdir)))
		return nil
	}

	width := descriptionWidth()
	tw := tabwriter.NewWriter(p.Out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t-----------")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, skills.Truncate(s.Description, width))
	}
	return errors.Wrap(tw.Flush(), "failed to write skill list")
}

func runAdd(cmd *cobra.Command, p presenter.Presenter, config *AddConfig) error {
	ctx := cmd.Context()

	source, err := resolveSource(config.Source, "")
	if err != nil {
		return err
	}
	list, err := listSourceSkills(ctx, source)
	if err != nil {
		return err
	}

	var sel installer.Selection
	switch {
	case config.All:
		sel = installer.AllSkills()
	case len(config.Skills) > 0:
		sel, err = selectSkills(cmd, skills.Names(list), config.Skills)
		if err != nil {
			return err
		}
	case isInteractive():
		picked, err := pickSkills(ctx, "Select skills to add from "+source, tui.ItemsFromSkills(list), descriptionWidth())
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

	inst, err := installer.New(installer.WithForce(config.Force), installer.WithDryRun(config.DryRun))
	if err != nil {
		return err
	}
	tgts := targets.Select(config.Tools, targets.ScopeProject)

	report, err := inst.Add(ctx, source, sel, tgts)
	if err != nil {
		return err
	}
	if len(report.Items) == 0 {
		p.Info(fmt.Sprintf("No skills found in %s", filepath.Join(source, skills.SourceSubdir)))
		return nil
	}
	return printSyncReport(p, source, report)
}
