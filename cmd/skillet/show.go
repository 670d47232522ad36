package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jingkaihe/skillet/pkg/frontmatter"
	"github.com/jingkaihe/skillet/pkg/skills"
)

const defaultRenderWidth = 80

// ShowConfig holds configuration for the show command
type ShowConfig struct {
	Source string
	Raw    bool
}

// NewShowConfig creates a new ShowConfig with default values
func NewShowConfig() *ShowConfig {
	return &ShowConfig{}
}

var showCmd = &cobra.Command{
	Use:   "show <skill>",
	Short: "Render a skill's SKILL.md",
	Long: `Render the SKILL.md of a skill in a source as formatted markdown.

Examples:
  skillet show pdf --source ../skills
  skillet show pdf --raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShow(cmd, args[0], getShowConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewShowConfig()
	showCmd.Flags().StringP("source", "s", defaults.Source, "Source directory containing skills/ (default: working directory)")
	showCmd.Flags().Bool("raw", defaults.Raw, "Print SKILL.md without rendering")

	rootCmd.AddCommand(withTracing(showCmd))
}

// getShowConfigFromFlags extracts show configuration from command flags
func getShowConfigFromFlags(cmd *cobra.Command) *ShowConfig {
	config := NewShowConfig()
	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	if raw, err := cmd.Flags().GetBool("raw"); err == nil {
		config.Raw = raw
	}
	return config
}

func runShow(cmd *cobra.Command, name string, config *ShowConfig) error {
	wd, err := workingDir()
	if err != nil {
		return err
	}
	source, err := resolveSource(config.Source, wd)
	if err != nil {
		return err
	}
	if _, err := listSourceSkills(cmd.Context(), source); err != nil {
		return err
	}

	skill, err := skills.GetSkill(cmd.Context(), source, name)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(skill.Directory, skills.FileName))
	if err != nil {
		return errors.Wrap(err, "failed to read skill file")
	}

	out := cmd.OutOrStdout()
	if config.Raw {
		_, err := out.Write(content)
		return err
	}

	doc, _ := frontmatter.Parse(content)
	p := newPresenter(cmd)
	p.Section(skill.Name)
	if skill.Description != "" {
		p.Info(skill.Description)
	}
	p.Info(fmt.Sprintf("Path: %s", skill.Directory))

	rendered, err := renderMarkdown(doc.Body, isTerminal(os.Stdout))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rendered)
	return nil
}

// renderMarkdown renders markdown with glamour. Outside a terminal the notty
// style is used so the output carries no escape codes.
func renderMarkdown(md string, tty bool) (string, error) {
	width := defaultRenderWidth
	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w >= 40 {
			width = w
		}
	}

	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
	if err != nil {
		return "", errors.Wrap(err, "failed to create markdown renderer")
	}
	out, err := r.Render(md)
	if err != nil {
		return "", errors.Wrap(err, "failed to render markdown")
	}
	return strings.TrimRight(out, "\n"), nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
