package skills

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/frontmatter"
	"github.com/jingkaihe/skillet/pkg/logger"
)

// markerPattern bounds discovery to skills/<name>/SKILL.md
const markerPattern = SourceSubdir + "/*/" + FileName

func skillsDir(source string) string {
	return filepath.Join(source, SourceSubdir)
}

// IsSource reports whether dir/skills/*/SKILL.md matches at least one
// regular file. A skills/ folder without such a match does not qualify.
func IsSource(dir string) bool {
	matches, err := markers(dir)
	if err != nil {
		return false
	}
	return len(matches) > 0
}

// markers returns the skills/*/SKILL.md paths below dir that are regular
// files, relative to dir in slash form
func markers(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, markerPattern)
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, match := range matches {
		if info, err := fs.Stat(fsys, match); err == nil && info.Mode().IsRegular() {
			files = append(files, match)
		}
	}
	return files, nil
}

// FindSources returns every immediate child of searchRoot that is a source,
// followed by workDir when it is a source not already found as a sibling.
// Results are deduplicated by resolved absolute path and keep directory
// enumeration order. No match yields an empty list.
func FindSources(ctx context.Context, searchRoot, workDir string) ([]Source, error) {
	var sources []Source
	seen := make(map[string]bool)

	add := func(dir string) {
		resolved, err := resolve(dir)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("dir", dir).Debug("failed to resolve candidate source")
			return
		}
		if seen[resolved] || !IsSource(resolved) {
			return
		}
		seen[resolved] = true
		sources = append(sources, Source{Path: resolved})
	}

	if searchRoot != "" {
		entries, err := os.ReadDir(searchRoot)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read search path %s", searchRoot)
		}
		for _, entry := range entries {
			entryPath := filepath.Join(searchRoot, entry.Name())
			info, err := os.Stat(entryPath)
			if err != nil || !info.IsDir() {
				continue
			}
			add(entryPath)
		}
	}

	if workDir != "" {
		add(workDir)
	}

	return sources, nil
}

func resolve(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// ListSkills returns the skills of a source sorted by name. A SKILL.md
// without frontmatter or description yields an empty description.
func ListSkills(ctx context.Context, source string) ([]Skill, error) {
	dir := skillsDir(source)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(ErrNotASource, "%s has no %s/ directory", source, SourceSubdir)
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve source path")
	}

	matches, err := markers(abs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan skills directory")
	}

	result := make([]Skill, 0, len(matches))
	for _, match := range matches {
		skillDir := filepath.Join(abs, filepath.FromSlash(path.Dir(match)))
		skill, err := loadSkill(ctx, skillDir)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("dir", skillDir).Debug("skipping unreadable skill")
			continue
		}
		result = append(result, *skill)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// GetSkill returns a specific skill of a source by name
func GetSkill(ctx context.Context, source, name string) (*Skill, error) {
	if !Exists(source, name) {
		return nil, errors.Errorf("skill '%s' not found in %s", name, source)
	}
	abs, err := filepath.Abs(filepath.Join(skillsDir(source), name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve skill path")
	}
	return loadSkill(ctx, abs)
}

// Exists reports whether source/skills/<name>/SKILL.md exists
func Exists(source, name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return false
	}
	info, err := os.Stat(filepath.Join(skillsDir(source), name, FileName))
	return err == nil && info.Mode().IsRegular()
}

func loadSkill(ctx context.Context, dir string) (*Skill, error) {
	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	doc, err := frontmatter.Parse(content)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("dir", dir).Debug("recovered skill metadata from malformed frontmatter")
	}

	return &Skill{
		Name:        filepath.Base(dir),
		Description: doc.Meta.Description,
		Directory:   dir,
	}, nil
}

// Names returns the names of the given skills in order
func Names(list []Skill) []string {
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	return names
}

// Select expands patterns against the available names. Patterns containing
// glob metacharacters expand to every match in available order; literal names
// and patterns matching nothing pass through unchanged so the caller can
// report them as not found. Duplicates are dropped.
func Select(available []string, patterns []string) ([]string, error) {
	var selected []string
	seen := make(map[string]bool)
	push := func(name string) {
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, "*?[{") {
			push(pattern)
			continue
		}

		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid skill pattern %q", pattern)
		}
		matched := false
		for _, name := range available {
			if g.Match(name) {
				push(name)
				matched = true
			}
		}
		if !matched {
			push(pattern)
		}
	}

	return selected, nil
}

// Truncate shortens s to at most width runes, ending in "..." when cut.
// Newlines are flattened so folded descriptions stay on one line.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-3]) + "..."
}
