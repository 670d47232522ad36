package installer

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/skills"
	"github.com/jingkaihe/skillet/pkg/targets"
)

// State describes how an installed skill compares to its source
type State string

// Status states
const (
	StateInSync   State = "in_sync"
	StateModified State = "modified"
	StateMissing  State = "missing"
	// StateNotFound means the skill does not exist in the source
	StateNotFound State = "not_found"
)

// StatusItem reports the drift of one skill in one target
type StatusItem struct {
	Name   string
	Target targets.Target
	Path   string
	State  State
	// Changes lists relative paths prefixed with + (only in source),
	// - (only installed) or ~ (content differs)
	Changes []string
	// Diff is a unified diff from the installed copy to the source for text
	// files that differ
	Diff string
}

// Status compares installed copies against the source. Re-adding a Modified
// skill with force restores it to match the source exactly.
func (i *Installer) Status(ctx context.Context, source string, sel Selection, tgts []targets.Target) ([]StatusItem, error) {
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

	_, span := tracer.Start(ctx, "installer.status")
	defer span.End()

	var items []StatusItem
	for _, name := range names {
		for _, t := range tgts {
			item := StatusItem{Name: name, Target: t, Path: filepath.Join(roots[t], name)}
			switch {
			case !skills.Exists(source, name):
				item.State = StateNotFound
			case !dirExists(item.Path):
				item.State = StateMissing
			default:
				src := filepath.Join(source, skills.SourceSubdir, name)
				changes, diff, err := compareTrees(src, item.Path)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to compare %s", item.Path)
				}
				item.Changes = changes
				item.Diff = diff
				item.State = StateInSync
				if len(changes) > 0 {
					item.State = StateModified
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

type entry struct {
	link    string
	content []byte
	mode    fs.FileMode
}

func snapshot(root string) (map[string]entry, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}

	files := make(map[string]entry)
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files[rel] = entry{link: link}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = entry{content: content, mode: info.Mode().Perm()}
		return nil
	})
	return files, err
}

func compareTrees(src, installed string) ([]string, string, error) {
	want, err := snapshot(src)
	if err != nil {
		return nil, "", err
	}
	have, err := snapshot(installed)
	if err != nil {
		return nil, "", err
	}

	paths := make([]string, 0, len(want)+len(have))
	for p := range want {
		paths = append(paths, p)
	}
	for p := range have {
		if _, ok := want[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var changes []string
	var diff strings.Builder
	for _, p := range paths {
		w, inSource := want[p]
		h, inInstalled := have[p]
		switch {
		case !inInstalled:
			changes = append(changes, "+ "+p)
		case !inSource:
			changes = append(changes, "- "+p)
		case w.link != h.link || w.mode != h.mode || !bytes.Equal(w.content, h.content):
			changes = append(changes, "~ "+p)
			if isText(w.content) && isText(h.content) && !bytes.Equal(w.content, h.content) {
				diff.WriteString(udiff.Unified("installed/"+p, "source/"+p, string(h.content), string(w.content)))
			}
		}
	}

	return changes, diff.String(), nil
}

func isText(content []byte) bool {
	return bytes.IndexByte(content, 0) == -1
}
