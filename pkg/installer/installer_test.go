package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillet/pkg/targets"
)

type fixture struct {
	source   string
	resolver targets.Resolver
	project  []targets.Target
}

func newFixture(t *testing.T, skillNames ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		source: filepath.Join(base, "source"),
		resolver: targets.Resolver{
			HomeDir: filepath.Join(base, "home"),
			WorkDir: filepath.Join(base, "work"),
		},
		project: targets.Select(nil, targets.ScopeProject),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.source, "skills"), 0o755))
	for _, name := range skillNames {
		f.writeSkill(t, name)
	}
	return f
}

func (f *fixture) writeSkill(t *testing.T, name string) {
	t.Helper()
	dir := filepath.Join(f.source, "skills", name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))
	content := "---\nname: " + name + "\ndescription: Skill " + name + "\n---\n\nUse " + name + ".\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "run.sh"), []byte("#!/bin/sh\necho "+name+"\n"), 0o755))
}

func (f *fixture) installer(t *testing.T, opts ...Option) *Installer {
	t.Helper()
	i, err := New(append([]Option{WithResolver(f.resolver)}, opts...)...)
	require.NoError(t, err)
	return i
}

func (f *fixture) root(t *testing.T, target targets.Target) string {
	t.Helper()
	root, err := f.resolver.Root(target)
	require.NoError(t, err)
	return root
}

func TestNewWithOptions(t *testing.T) {
	i, err := New(WithForce(true), WithDryRun(true), WithResolver(targets.Resolver{HomeDir: "/h", WorkDir: "/w"}))
	require.NoError(t, err)
	assert.True(t, i.force)
	assert.True(t, i.dryRun)
	assert.Equal(t, "/h", i.resolver.HomeDir)
}

func TestAddRemoveScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	target := []targets.Target{{Tool: targets.ToolClaude, Scope: targets.ScopeProject}}
	i := f.installer(t)

	report, err := i.Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.NotFound)
	assert.NoError(t, report.Err())

	installed, err := i.ListInstalled(target[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, installed)
	assert.FileExists(t, filepath.Join(f.root(t, target[0]), "a", "scripts", "run.sh"))

	removal, err := i.Remove(ctx, target, Named("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, removal.Removed)
	assert.Equal(t, 0, removal.NotFound)

	installed, err = i.ListInstalled(target[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, installed)
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	i := f.installer(t)

	first, err := i.Add(ctx, f.source, AllSkills(), f.project)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Added)

	before, err := snapshot(f.resolver.WorkDir)
	require.NoError(t, err)

	second, err := i.Add(ctx, f.source, AllSkills(), f.project)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 4, second.Skipped)
	for _, item := range second.Items {
		assert.Equal(t, OutcomeSkipped, item.Outcome)
	}

	after, err := snapshot(f.resolver.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAddBatchIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "valid", "valid2")
	target := []targets.Target{{Tool: targets.ToolCodex, Scope: targets.ScopeGlobal}}
	i := f.installer(t)

	report, err := i.Add(ctx, f.source, Named("valid", "missing", "valid2"), target)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.NotFound)
	require.Len(t, report.Items, 3)
	assert.Equal(t, "missing", report.Items[1].Name)
	assert.Equal(t, OutcomeNotFound, report.Items[1].Outcome)

	installed, err := i.ListInstalled(target[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"valid", "valid2"}, installed)
	assert.Contains(t, f.root(t, target[0]), filepath.Join("home", ".agents", "skills"))
}

func TestAddPairOrder(t *testing.T) {
	f := newFixture(t, "x", "y")
	report, err := f.installer(t).Add(context.Background(), f.source, Named("y", "x"), f.project)
	require.NoError(t, err)

	var order []string
	for _, item := range report.Items {
		order = append(order, item.Name+"@"+item.Target.String())
	}
	assert.Equal(t, []string{
		"y@claude-project", "y@codex-project",
		"x@claude-project", "x@codex-project",
	}, order)
}

func TestAddForceRestoresModifiedSkill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	target := f.project[:1]

	_, err := f.installer(t).Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)

	installedDir := filepath.Join(f.root(t, target[0]), "a")
	require.NoError(t, os.WriteFile(filepath.Join(installedDir, "SKILL.md"), []byte("tampered\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(installedDir, "extra.txt"), []byte("junk"), 0o644))

	status, err := f.installer(t).Status(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, StateModified, status[0].State)
	assert.Equal(t, []string{"~ SKILL.md", "- extra.txt"}, status[0].Changes)
	assert.Contains(t, status[0].Diff, "-tampered")
	assert.Contains(t, status[0].Diff, "+Use a.")

	report, err := f.installer(t).Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped, "without force the modified copy is left alone")

	report, err = f.installer(t, WithForce(true)).Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)

	status, err = f.installer(t).Status(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	assert.Equal(t, StateInSync, status[0].State)
	assert.Empty(t, status[0].Changes)
	assert.NoFileExists(t, filepath.Join(installedDir, "extra.txt"))
}

func TestAddPreflightErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	i := f.installer(t)

	_, err := i.Add(ctx, filepath.Join(f.source, "nowhere"), AllSkills(), f.project)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))

	_, err = i.Add(ctx, f.source, AllSkills(), nil)
	assert.True(t, errors.Is(err, ErrNoTargets))

	assert.NoDirExists(t, f.resolver.WorkDir, "pre-flight failures must not touch targets")
}

func TestAddDryRun(t *testing.T) {
	f := newFixture(t, "a", "b")
	report, err := f.installer(t, WithDryRun(true)).Add(context.Background(), f.source, AllSkills(), f.project)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 4, report.Added)
	assert.NoDirExists(t, f.resolver.WorkDir)
}

func TestAddCancelledContext(t *testing.T) {
	f := newFixture(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.installer(t).Add(ctx, f.source, AllSkills(), f.project)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Empty(t, report.Items)
}

func TestListInstalled(t *testing.T) {
	f := newFixture(t)
	i := f.installer(t)
	target := f.project[0]

	names, err := i.ListInstalled(target)
	require.NoError(t, err)
	assert.Empty(t, names, "missing root is an empty list")

	root := f.root(t, target)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-marker"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".staging"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".staging", "SKILL.md"), []byte("x"), 0o644))
	for _, name := range []string{"zulu", "alpha"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, name, "SKILL.md"), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "loose.md"), []byte("x"), 0o644))

	names, err = i.ListInstalled(target)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zulu"}, names)
}

func TestRemoveAllResolvesPerTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	i := f.installer(t)

	claude := targets.Target{Tool: targets.ToolClaude, Scope: targets.ScopeProject}
	codex := targets.Target{Tool: targets.ToolCodex, Scope: targets.ScopeProject}

	_, err := i.Add(ctx, f.source, Named("a", "b"), []targets.Target{claude})
	require.NoError(t, err)
	_, err = i.Add(ctx, f.source, Named("c"), []targets.Target{codex})
	require.NoError(t, err)

	report, err := i.Remove(ctx, []targets.Target{claude, codex}, AllSkills())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Removed)
	assert.Equal(t, 0, report.NotFound)

	for _, target := range []targets.Target{claude, codex} {
		names, err := i.ListInstalled(target)
		require.NoError(t, err)
		assert.Empty(t, names)
	}
}

func TestRemoveNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	i := f.installer(t)
	target := f.project[:1]

	report, err := i.Remove(ctx, target, Named("ghost", "../escape"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 2, report.NotFound)
	assert.NoDirExists(t, f.root(t, target[0]), "removal never creates a root")

	_, err = i.Remove(ctx, nil, Named("a"))
	assert.True(t, errors.Is(err, ErrNoTargets))
}

func TestRemovePrunesEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	i := f.installer(t)
	target := f.project[:1]
	root := f.root(t, target[0])

	_, err := i.Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "category", "leftover"), 0o755))

	report, err := i.Remove(ctx, target, Named("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Contains(t, report.Pruned, filepath.Join(root, "category"))
	assert.DirExists(t, root)
}

func TestRemoveKeepsOtherSkillsIntact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	for _, name := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(f.source, "skills", name, "assets"), 0o755))
	}
	i := f.installer(t)
	target := f.project[:1]
	root := f.root(t, target[0])

	_, err := i.Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(root, "b", "assets"))

	report, err := i.Remove(ctx, target, Named("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Empty(t, report.Pruned)
	assert.DirExists(t, filepath.Join(root, "b", "assets"))

	status, err := i.Status(ctx, f.source, Named("b"), target)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, StateInSync, status[0].State)
}

func TestEmptySelectionIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	i := f.installer(t)
	target := f.project[:1]

	_, err := i.Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)

	_, err = i.Add(ctx, f.source, Named(), target)
	assert.True(t, errors.Is(err, ErrNoSkills))

	_, err = i.Remove(ctx, target, Selection{})
	assert.True(t, errors.Is(err, ErrNoSkills))
	assert.DirExists(t, filepath.Join(f.root(t, target[0]), "a"))

	_, err = i.Status(ctx, f.source, Named(), target)
	assert.True(t, errors.Is(err, ErrNoSkills))

	_, err = i.Remove(ctx, target, Selection{All: true, Names: []string{"a"}})
	assert.Error(t, err)
	assert.DirExists(t, filepath.Join(f.root(t, target[0]), "a"))
}

func TestRemoveDryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	target := f.project[:1]

	_, err := f.installer(t).Add(ctx, f.source, AllSkills(), target)
	require.NoError(t, err)

	report, err := f.installer(t, WithDryRun(true)).Remove(ctx, target, AllSkills())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.DirExists(t, filepath.Join(f.root(t, target[0]), "a"))
}

func TestReportErr(t *testing.T) {
	target := targets.Target{Tool: targets.ToolClaude, Scope: targets.ScopeGlobal}
	report := &SyncReport{}
	report.record(SyncItem{Name: "ok", Target: target, Outcome: OutcomeAdded})
	assert.NoError(t, report.Err())

	report.record(SyncItem{Name: "bad", Target: target, Outcome: OutcomeFailed, Err: errors.New("disk full")})
	report.record(SyncItem{Name: "worse", Target: target, Outcome: OutcomeFailed, Err: errors.New("read-only")})
	assert.Equal(t, 2, report.Failed)

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad -> claude-global: disk full")
	assert.Contains(t, err.Error(), "worse -> claude-global: read-only")

	removal := &RemovalReport{}
	removal.record(RemovalItem{Name: "x", Target: target, Outcome: OutcomeFailed, Err: errors.New("busy")})
	assert.Error(t, removal.Err())
}

func TestStatusStates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	target := f.project[:1]

	_, err := f.installer(t).Add(ctx, f.source, Named("a"), target)
	require.NoError(t, err)

	items, err := f.installer(t).Status(ctx, f.source, Named("a", "b", "zzz"), target)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, StateInSync, items[0].State)
	assert.Equal(t, StateMissing, items[1].State)
	assert.Equal(t, StateNotFound, items[2].State)
}
