package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/targets"
	"github.com/jingkaihe/skillet/pkg/tui"
)

func newTestCommand(use string, register func(*cobra.Command), args ...string) (*cobra.Command, error) {
	cmd := &cobra.Command{Use: use, Run: func(_ *cobra.Command, _ []string) {}}
	register(cmd)
	return cmd, cmd.ParseFlags(args)
}

func TestInstallConfigFromFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		scope     targets.Scope
		tools     []targets.Tool
		uninstall bool
		force     bool
		wantErr   bool
	}{
		{
			name:  "defaults to global and every tool",
			args:  []string{},
			scope: targets.ScopeGlobal,
			tools: []targets.Tool{targets.ToolClaude, targets.ToolCodex},
		},
		{
			name:  "project scope with one tool",
			args:  []string{"--project", "--codex"},
			scope: targets.ScopeProject,
			tools: []targets.Tool{targets.ToolCodex},
		},
		{
			name:  "all overrides tool flags",
			args:  []string{"--claude", "--all"},
			scope: targets.ScopeGlobal,
			tools: []targets.Tool{targets.ToolClaude, targets.ToolCodex},
		},
		{
			name:      "uninstall and force",
			args:      []string{"-g", "--uninstall", "-f"},
			scope:     targets.ScopeGlobal,
			tools:     []targets.Tool{targets.ToolClaude, targets.ToolCodex},
			uninstall: true,
			force:     true,
		},
		{
			name:    "global and project conflict",
			args:    []string{"--global", "--project"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := newTestCommand("install", registerInstallFlags, tt.args...)
			require.NoError(t, err)

			config := getInstallConfigFromFlags(cmd)
			err = config.Validate(cmd)
			if tt.wantErr {
				var usageErr *UsageError
				require.True(t, errors.As(err, &usageErr))
				assert.Equal(t, "install", usageErr.command)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.scope, config.Scope())
			assert.Equal(t, tt.tools, config.Tools)
			assert.Equal(t, tt.uninstall, config.Uninstall)
			assert.Equal(t, tt.force, config.Force)
		})
	}
}

func TestAddConfigFromFlags(t *testing.T) {
	cmd, err := newTestCommand("add", registerAddFlags, "--source", "../skills", "--skills", "a,b", "--skills", "c*", "--claude", "--dry-run")
	require.NoError(t, err)

	config := getAddConfigFromFlags(cmd)
	require.NoError(t, config.Validate(cmd))
	assert.Equal(t, "../skills", config.Source)
	assert.Equal(t, []string{"a", "b", "c*"}, config.Skills)
	assert.Equal(t, []targets.Tool{targets.ToolClaude}, config.Tools)
	assert.True(t, config.DryRun)
	assert.False(t, config.Force)
}

func TestAddConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"skills and all", []string{"--source", "s", "--skills", "a", "--all"}, "cannot be used together"},
		{"missing source", []string{"--all"}, "--source is required"},
		{"discover needs no source", []string{"--discover"}, ""},
		{"list with source", []string{"--source", "s", "--list"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := newTestCommand("add", registerAddFlags, tt.args...)
			require.NoError(t, err)

			err = getAddConfigFromFlags(cmd).Validate(cmd)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRemoveConfigFromFlags(t *testing.T) {
	cmd, err := newTestCommand("remove", registerRemoveFlags)
	require.NoError(t, err)
	config := getRemoveConfigFromFlags(cmd)
	assert.Equal(t, targets.ScopeProject, config.Scope())
	assert.Equal(t, targets.AllTools(), config.Tools)

	cmd, err = newTestCommand("remove", registerRemoveFlags, "--global", "--codex", "--all")
	require.NoError(t, err)
	config = getRemoveConfigFromFlags(cmd)
	assert.Equal(t, targets.ScopeGlobal, config.Scope())
	assert.Equal(t, []targets.Tool{targets.ToolCodex}, config.Tools)
	assert.True(t, config.All)

	cmd, err = newTestCommand("remove", registerRemoveFlags, "--all", "--skills", "x")
	require.NoError(t, err)
	assert.Error(t, getRemoveConfigFromFlags(cmd).Validate(cmd))
}

func TestWatchConfig(t *testing.T) {
	defaults := NewWatchConfig()
	assert.Equal(t, 500, defaults.DebounceTime)
	assert.Equal(t, targets.ScopeProject, defaults.Scope())
	assert.NoError(t, defaults.Validate())

	cmd, err := newTestCommand("watch", registerWatchFlags, "-d", "-1", "--global")
	require.NoError(t, err)
	config := getWatchConfigFromFlags(cmd)
	assert.Equal(t, targets.ScopeGlobal, config.Scope())
	assert.Error(t, config.Validate())
}

func TestSkillFilter(t *testing.T) {
	all := skillFilter(nil)
	assert.True(t, all("anything"))

	filter := skillFilter([]string{"pdf", "git-*"})
	assert.True(t, filter("pdf"))
	assert.True(t, filter("git-commit"))
	assert.False(t, filter("docx"))
}

func TestSkillOf(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pdf", "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	tests := []struct {
		path  string
		skill string
		ok    bool
	}{
		{filepath.Join(root, "pdf", "SKILL.md"), "pdf", true},
		{filepath.Join(root, "pdf", "scripts", "run.sh"), "pdf", true},
		{filepath.Join(root, "pdf"), "pdf", true},
		{filepath.Join(root, "removed"), "removed", true},
		{filepath.Join(root, "README.md"), "", false},
		{filepath.Join(root, ".pdf.1234.tmp", "SKILL.md"), "", false},
		{filepath.Join(root, "pdf", ".cache"), "", false},
		{root, "", false},
		{filepath.Dir(root), "", false},
	}

	for _, tt := range tests {
		skill, ok := skillOf(root, tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.skill, skill, tt.path)
	}
}

func TestDebounceSkillEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan skillEvent)
	output := make(chan skillEvent, 10)
	go debounceSkillEvents(ctx, input, output, 50*time.Millisecond)

	input <- skillEvent{Skill: "a", Path: "a/one.md", Op: fsnotify.Write}
	input <- skillEvent{Skill: "b", Path: "b/SKILL.md", Op: fsnotify.Create}
	input <- skillEvent{Skill: "a", Path: "a/two.md", Op: fsnotify.Write}
	input <- skillEvent{Skill: "a", Path: "a/three.md", Op: fsnotify.Write}

	got := map[string]skillEvent{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-output:
			_, dup := got[ev.Skill]
			require.False(t, dup, "skill %s emitted twice", ev.Skill)
			got[ev.Skill] = ev
		case <-timeout:
			t.Fatalf("timed out waiting for debounced events, got %v", got)
		}
	}

	assert.Equal(t, "a/three.md", got["a"].Path, "the latest event for a skill wins")
	assert.Equal(t, "b/SKILL.md", got["b"].Path)

	select {
	case ev := <-output:
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("# Title\n\nSome *body* text.\n", false)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
	assert.NotContains(t, out, "\x1b[")
}

func TestPrintSyncReport(t *testing.T) {
	target := targets.Target{Tool: targets.ToolClaude, Scope: targets.ScopeProject}
	report := &installer.SyncReport{
		Items: []installer.SyncItem{
			{Name: "a", Target: target, Path: "/p/.claude/skills/a", Outcome: installer.OutcomeAdded},
			{Name: "b", Target: target, Path: "/p/.claude/skills/b", Outcome: installer.OutcomeSkipped},
			{Name: "x", Target: target, Path: "/p/.claude/skills/x", Outcome: installer.OutcomeNotFound},
		},
		Added:    1,
		Skipped:  1,
		NotFound: 1,
	}

	var out, errOut bytes.Buffer
	p := presenter.NewWithOptions(&out, &errOut, presenter.ColorNever)
	require.NoError(t, printSyncReport(p, "/src", report))

	assert.Equal(t, strings.Join([]string{
		"✓ Added 'a' to /p/.claude/skills/a",
		"⚠ Skipped 'b': already exists in /p/.claude/skills/b (use --force to overwrite)",
		"⚠ Skill 'x' not found in /src/skills",
		"Summary: 1 added, 1 skipped, 1 not found, 0 failed",
		"",
	}, "\n"), out.String())
	assert.Empty(t, errOut.String())

	report.Items = append(report.Items, installer.SyncItem{
		Name: "c", Target: target, Path: "/p/.claude/skills/c", Outcome: installer.OutcomeFailed, Err: errors.New("disk full"),
	})
	report.Failed = 1
	err := printSyncReport(p, "/src", report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 skill(s) failed to install")
	assert.Contains(t, errOut.String(), "Failed to add 'c' to /p/.claude/skills/c")
}

func writeTestSkill(t *testing.T, source, name string) {
	t.Helper()
	dir := filepath.Join(source, "skills", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "---\nname: " + name + "\ndescription: The " + name + " skill.\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
}

func executeAdd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "add", RunE: addCmd.RunE, SilenceUsage: true, SilenceErrors: true}
	registerAddFlags(cmd)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddInteractivePicker(t *testing.T) {
	work := t.TempDir()
	source := filepath.Join(work, "src")
	writeTestSkill(t, source, "alpha")
	writeTestSkill(t, source, "beta")

	project := filepath.Join(work, "project")
	require.NoError(t, os.MkdirAll(project, 0o755))
	t.Chdir(project)
	t.Setenv("HOME", filepath.Join(work, "home"))

	origInteractive, origPick := isInteractive, pickSkills
	t.Cleanup(func() { isInteractive, pickSkills = origInteractive, origPick })

	isInteractive = func() bool { return true }
	var offered []tui.Item
	pickSkills = func(_ context.Context, _ string, items []tui.Item, _ int) ([]string, error) {
		offered = items
		return []string{"beta"}, nil
	}

	out, err := executeAdd(t, "--source", source, "--claude")
	require.NoError(t, err)
	assert.Equal(t, []tui.Item{{Name: "alpha", Description: "The alpha skill."}, {Name: "beta", Description: "The beta skill."}}, offered)
	assert.Contains(t, out, "Summary: 1 added, 0 skipped, 0 not found, 0 failed")
	assert.FileExists(t, filepath.Join(project, ".claude", "skills", "beta", "SKILL.md"))
	assert.NoDirExists(t, filepath.Join(project, ".claude", "skills", "alpha"))

	pickSkills = func(context.Context, string, []tui.Item, int) ([]string, error) {
		return nil, tui.ErrCancelled
	}
	out, err = executeAdd(t, "--source", source, "--claude")
	require.NoError(t, err)
	assert.Contains(t, out, "No skills selected")

	isInteractive = func() bool { return false }
	_, err = executeAdd(t, "--source", source)
	var usageErr *UsageError
	assert.True(t, errors.As(err, &usageErr))
}

func TestSelectSkills(t *testing.T) {
	cmd := &cobra.Command{Use: "remove"}
	available := []string{"alpha", "beta", "git-commit"}

	sel, err := selectSkills(cmd, available, []string{"alpha", "git-*"})
	require.NoError(t, err)
	assert.Equal(t, installer.Named("alpha", "git-commit"), sel)
	assert.False(t, sel.All)

	for _, patterns := range [][]string{{""}, {"", ""}, {" "}, {" ", "\t"}} {
		_, err := selectSkills(cmd, available, patterns)
		var usageErr *UsageError
		require.True(t, errors.As(err, &usageErr), "patterns %q", patterns)
		assert.Contains(t, usageErr.Error(), "names no skill")
	}
}
