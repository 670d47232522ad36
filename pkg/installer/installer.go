// Package installer copies skills from a source into installation roots and
// removes them again. Batches are best-effort: every (skill, target) pair is
// attempted and reported, and one pair's failure never aborts the rest.
package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jingkaihe/skillet/pkg/fsutil"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
	"github.com/jingkaihe/skillet/pkg/telemetry"
)

var (
	// ErrSourceNotFound is returned when a source has no skills/ directory
	ErrSourceNotFound = errors.New("skill source not found")
	// ErrNoTargets is returned when a batch is given no targets
	ErrNoTargets = errors.New("no install targets selected")
	// ErrNoSkills is returned when a batch names no skills and does not select all
	ErrNoSkills = errors.New("no skills selected")
)

// Selection names the skills a batch works on. All and Names are exclusive;
// an empty Names without All selects nothing and is rejected.
type Selection struct {
	All   bool
	Names []string
}

// AllSkills selects every skill
func AllSkills() Selection {
	return Selection{All: true}
}

// Named selects the given skills in order
func Named(names ...string) Selection {
	return Selection{Names: names}
}

func (s Selection) validate() error {
	if s.All {
		if len(s.Names) > 0 {
			return errors.New("a selection cannot name skills and select all")
		}
		return nil
	}
	if len(s.Names) == 0 {
		return ErrNoSkills
	}
	return nil
}

// sourceNames expands the selection against a source
func (s Selection) sourceNames(ctx context.Context, source string) ([]string, error) {
	if !s.All {
		return s.Names, nil
	}
	list, err := skills.ListSkills(ctx, source)
	if err != nil {
		return nil, err
	}
	return skills.Names(list), nil
}

var tracer = telemetry.Tracer("skillet.installer")

// Installer handles skill installation into and removal from target roots
type Installer struct {
	resolver    targets.Resolver
	hasResolver bool
	force       bool
	dryRun      bool
}

// Option configures an Installer instance
type Option func(*Installer)

// WithForce overwrites skills that are already installed
func WithForce(force bool) Option {
	return func(i *Installer) {
		i.force = force
	}
}

// WithDryRun reports what a batch would do without touching the filesystem
func WithDryRun(dryRun bool) Option {
	return func(i *Installer) {
		i.dryRun = dryRun
	}
}

// WithResolver sets the home and working directories target roots resolve against
func WithResolver(r targets.Resolver) Option {
	return func(i *Installer) {
		i.resolver = r
		i.hasResolver = true
	}
}

// New creates an installer. Without WithResolver the current user's home
// and working directories are used.
func New(opts ...Option) (*Installer, error) {
	i := &Installer{}
	for _, opt := range opts {
		opt(i)
	}

	if !i.hasResolver {
		r, err := targets.NewResolver()
		if err != nil {
			return nil, err
		}
		i.resolver = r
	}

	return i, nil
}

// Root returns the installation root of a target
func (i *Installer) Root(t targets.Target) (string, error) {
	return i.resolver.Root(t)
}

func (i *Installer) roots(tgts []targets.Target) (map[targets.Target]string, error) {
	if len(tgts) == 0 {
		return nil, ErrNoTargets
	}
	roots := make(map[targets.Target]string, len(tgts))
	for _, t := range tgts {
		root, err := i.resolver.Root(t)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve root for %s", t)
		}
		roots[t] = root
	}
	return roots, nil
}

// CheckSource returns ErrSourceNotFound when source/skills does not exist
func CheckSource(source string) error {
	info, err := os.Stat(filepath.Join(source, skills.SourceSubdir))
	if err != nil || !info.IsDir() {
		return errors.Wrapf(ErrSourceNotFound, "%s has no %s/ directory", source, skills.SourceSubdir)
	}
	return nil
}

// Add copies the selected skills from source into every target. Pairs run in
// name order, then target order.
func (i *Installer) Add(ctx context.Context, source string, sel Selection, tgts []targets.Target) (*SyncReport, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	if err := CheckSource(source); err != nil {
		return nil, err
	}
	roots, err := i.roots(tgts)
	if err != nil {
		return nil, err
	}

	names, err := sel.sourceNames(ctx, source)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "installer.add")
	defer span.End()

	log := logger.G(ctx).WithField("source", source)
	report := &SyncReport{DryRun: i.dryRun}

	unlocks := make(map[string]func())
	defer func() {
		for _, unlock := range unlocks {
			unlock()
		}
	}()

pairs:
	for _, name := range names {
		for _, t := range tgts {
			if ctx.Err() != nil {
				report.Interrupted = true
				break pairs
			}

			root := roots[t]
			item := SyncItem{Name: name, Target: t, Path: filepath.Join(root, name)}
			itemLog := log.WithField("skill", name).WithField("target", t.String())

			switch {
			case !skills.Exists(source, name):
				item.Outcome = OutcomeNotFound
			case fsutil.Exists(item.Path) && !i.force:
				item.Outcome = OutcomeSkipped
			case i.dryRun:
				item.Outcome = OutcomeAdded
			default:
				if _, locked := unlocks[root]; !locked {
					unlock, err := fsutil.LockRoot(root)
					if err != nil {
						item.Outcome = OutcomeFailed
						item.Err = err
						break
					}
					unlocks[root] = unlock
				}

				src := filepath.Join(source, skills.SourceSubdir, name)
				if err := fsutil.CopyDir(ctx, src, item.Path, i.force); err != nil {
					if errors.Is(err, fsutil.ErrExists) {
						item.Outcome = OutcomeSkipped
						break
					}
					item.Outcome = OutcomeFailed
					item.Err = err
					break
				}
				item.Outcome = OutcomeAdded
			}

			itemLog.WithField("outcome", item.Outcome).Debug("processed skill")
			report.record(item)
		}
	}

	span.SetAttributes(
		attribute.Int("skills.added", report.Added),
		attribute.Int("skills.skipped", report.Skipped),
		attribute.Int("skills.not_found", report.NotFound),
		attribute.Int("skills.failed", report.Failed),
	)
	if err := report.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return report, nil
}

// ListInstalled returns the skills installed in a target, sorted by name. A
// missing root yields an empty list.
func (i *Installer) ListInstalled(t targets.Target) ([]string, error) {
	root, err := i.resolver.Root(t)
	if err != nil {
		return nil, err
	}
	return listInstalledAt(root)
}

func listInstalledAt(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", root)
	}

	names := []string{}
	for _, entry := range entries {
		if fsutil.IsHidden(entry.Name()) {
			continue
		}
		entryPath := filepath.Join(root, entry.Name())
		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}
		if fsutil.Exists(filepath.Join(entryPath, skills.FileName)) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the selected skills from every target. Selecting all is
// resolved per target since targets may differ.
func (i *Installer) Remove(ctx context.Context, tgts []targets.Target, sel Selection) (*RemovalReport, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	roots, err := i.roots(tgts)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "installer.remove")
	defer span.End()

	report := &RemovalReport{DryRun: i.dryRun}

	for _, t := range tgts {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		root := roots[t]
		log := logger.G(ctx).WithField("target", t.String()).WithField("root", root)

		targetNames := sel.Names
		if sel.All {
			installed, err := listInstalledAt(root)
			if err != nil {
				report.record(RemovalItem{Name: "*", Target: t, Path: root, Outcome: OutcomeFailed, Err: err})
				continue
			}
			targetNames = installed
		}

		var unlock func()
		if !i.dryRun && fsutil.Exists(root) && len(targetNames) > 0 {
			if unlock, err = fsutil.LockRoot(root); err != nil {
				log.WithError(err).Warn("failed to lock installation root")
				unlock = nil
			}
		}

		for _, name := range targetNames {
			if ctx.Err() != nil {
				report.Interrupted = true
				break
			}

			item := RemovalItem{Name: name, Target: t, Path: filepath.Join(root, name)}
			switch {
			case !validName(name) || !fsutil.Exists(item.Path):
				item.Outcome = OutcomeNotFound
			case i.dryRun:
				item.Outcome = OutcomeRemoved
			default:
				if err := fsutil.RemoveAll(ctx, item.Path); err != nil {
					item.Outcome = OutcomeFailed
					item.Err = err
				} else {
					item.Outcome = OutcomeRemoved
				}
			}

			log.WithField("skill", name).WithField("outcome", item.Outcome).Debug("processed skill")
			report.record(item)
		}

		if !i.dryRun {
			pruned, err := fsutil.PruneEmptyDirs(root, skills.FileName)
			if err != nil {
				log.WithError(err).Warn("failed to prune empty directories")
			}
			report.Pruned = append(report.Pruned, pruned...)
		}

		if unlock != nil {
			unlock()
		}
	}

	span.SetAttributes(
		attribute.Int("skills.removed", report.Removed),
		attribute.Int("skills.not_found", report.NotFound),
		attribute.Int("skills.failed", report.Failed),
	)
	if err := report.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return report, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
