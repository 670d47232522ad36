package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillet/pkg/fsutil"
	"github.com/jingkaihe/skillet/pkg/installer"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/presenter"
	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
	"github.com/jingkaihe/skillet/pkg/telemetry"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	Source       string
	Skills       []string
	Tools        []targets.Tool
	Global       bool
	DebounceTime int
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		Tools:        targets.AllTools(),
		DebounceTime: 500,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

// Scope returns the target scope. Project is the default.
func (c *WatchConfig) Scope() targets.Scope {
	if c.Global {
		return targets.ScopeGlobal
	}
	return targets.ScopeProject
}

// skillEvent is a filesystem change attributed to one skill of the source
type skillEvent struct {
	Skill string
	Path  string
	Op    fsnotify.Op
	Time  time.Time
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep installed skills in sync with a source",
	Long: `Install the selected skills, then watch <source>/skills and re-install a
skill with --force semantics whenever one of its files changes. Useful while
authoring skills.

Examples:
  skillet watch --source ../skills --claude
  skillet watch --skills 'git-*' --global --debounce 1000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getWatchConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			return newUsageError(cmd, "%v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runWatch(ctx, newPresenter(cmd), config)
	},
}

func init() {
	registerWatchFlags(watchCmd)
	rootCmd.AddCommand(withTracing(watchCmd))
}

// registerWatchFlags registers the watch flags on cmd
func registerWatchFlags(cmd *cobra.Command) {
	defaults := NewWatchConfig()
	cmd.Flags().StringP("source", "s", defaults.Source, "Source directory containing skills/ (default: working directory)")
	cmd.Flags().StringSlice("skills", defaults.Skills, "Skills to keep in sync (comma separated names or glob patterns, default all)")
	addToolFlags(cmd)
	cmd.Flags().BoolP("global", "g", defaults.Global, "Sync into the per-user skill directories instead of the project ones")
	cmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")
}

// getWatchConfigFromFlags extracts watch configuration from command flags
func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	config := NewWatchConfig()

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
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounceTime
	}

	return config
}

func runWatch(ctx context.Context, p presenter.Presenter, config *WatchConfig) error {
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

	inst, err := installer.New(installer.WithForce(true))
	if err != nil {
		return err
	}
	tgts := targets.Select(config.Tools, config.Scope())
	selected := skillFilter(config.Skills)

	var initial []string
	for _, name := range skills.Names(list) {
		if selected(name) {
			initial = append(initial, name)
		}
	}
	if len(initial) > 0 {
		p.Info(fmt.Sprintf("Syncing %d skill(s) from %s into %s", len(initial), source, describeTargets(tgts)))
		syncSkills(ctx, p, inst, source, initial, tgts)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	skillsRoot := filepath.Join(source, skills.SourceSubdir)
	if err := watchTree(ctx, watcher, skillsRoot); err != nil {
		return err
	}

	events := make(chan skillEvent)
	debouncedEvents := make(chan skillEvent)
	go debounceSkillEvents(ctx, events, debouncedEvents, time.Duration(config.DebounceTime)*time.Millisecond)
	go forwardSkillEvents(ctx, watcher, skillsRoot, selected, events)

	p.Info(fmt.Sprintf("Watching %s for changes... Press Ctrl+C to stop", skillsRoot))

	for {
		select {
		case event := <-debouncedEvents:
			logger.G(ctx).WithFields(map[string]interface{}{
				"skill":     event.Skill,
				"file":      event.Path,
				"operation": event.Op.String(),
				"timestamp": event.Time,
			}).Debug("skill change detected")
			p.Info(fmt.Sprintf("Change detected in '%s' (%s)", event.Skill, event.Op))
			telemetry.AddEvent(ctx, "skill.changed", attribute.String("skill", event.Skill))
			syncSkills(ctx, p, inst, source, []string{event.Skill}, tgts)
		case <-ctx.Done():
			p.Info("Stopped watching")
			return nil
		}
	}
}

func syncSkills(ctx context.Context, p presenter.Presenter, inst *installer.Installer, source string, names []string, tgts []targets.Target) {
	report, err := inst.Add(ctx, source, installer.Named(names...), tgts)
	if err != nil {
		p.Error(err, "Failed to sync skills")
		return
	}
	if err := printSyncReport(p, source, report); err != nil {
		logger.G(ctx).WithError(err).Warn("sync finished with failures")
	}
}

// skillFilter returns a predicate matching names against the --skills
// patterns. No patterns match everything.
func skillFilter(patterns []string) func(string) bool {
	if len(patterns) == 0 {
		return func(string) bool { return true }
	}
	return func(name string) bool {
		matched, err := skills.Select([]string{name}, patterns)
		if err != nil {
			return false
		}
		for _, m := range matched {
			if m == name {
				return true
			}
		}
		return false
	}
}

// watchTree adds root and every non-hidden directory below it to the watcher
func watchTree(ctx context.Context, watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fsutil.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return watcher.Add(path)
	})
	return errors.Wrapf(err, "failed to watch %s", root)
}

// skillOf attributes a path below skillsRoot to a skill name. Hidden entries
// and files directly in skillsRoot belong to no skill.
func skillOf(skillsRoot, path string) (string, bool) {
	rel, err := filepath.Rel(skillsRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts {
		if fsutil.IsHidden(part) {
			return "", false
		}
	}
	// a removed skill directory can no longer be stat'ed and still counts
	if len(parts) == 1 {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return "", false
		}
	}
	return parts[0], true
}

func forwardSkillEvents(ctx context.Context, watcher *fsnotify.Watcher, skillsRoot string, selected func(string) bool, events chan<- skillEvent) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name, ok := skillOf(skillsRoot, event.Name)
			if !ok || !selected(name) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(ctx, watcher, event.Name); err != nil {
						logger.G(ctx).WithError(err).Warn("failed to watch new directory")
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			select {
			case events <- skillEvent{Skill: name, Path: event.Name, Op: event.Op, Time: time.Now()}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Error("error watching files")
		case <-ctx.Done():
			return
		}
	}
}

type firing struct {
	skill      string
	generation int
}

// debounceSkillEvents coalesces rapid changes to the same skill into one
// event, emitted once the skill has been quiet for delay
func debounceSkillEvents(ctx context.Context, input <-chan skillEvent, output chan<- skillEvent, delay time.Duration) {
	pending := make(map[string]skillEvent)
	timers := make(map[string]*time.Timer)
	generations := make(map[string]int)
	fired := make(chan firing)

	defer func() {
		for _, timer := range timers {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-input:
			if !ok {
				return
			}
			if timer, exists := timers[event.Skill]; exists {
				timer.Stop()
			}
			generations[event.Skill]++
			pending[event.Skill] = event

			f := firing{skill: event.Skill, generation: generations[event.Skill]}
			timers[event.Skill] = time.AfterFunc(delay, func() {
				select {
				case fired <- f:
				case <-ctx.Done():
				}
			})
		case f := <-fired:
			if generations[f.skill] != f.generation {
				continue
			}
			event, ok := pending[f.skill]
			delete(pending, f.skill)
			delete(timers, f.skill)
			if !ok {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
