// Package fsutil holds the filesystem primitives skillet builds on: staged
// recursive copies, retrying removal, empty directory pruning and advisory
// locks on installation roots.
package fsutil

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// LockFileName is the advisory lock kept in each installation root
const LockFileName = ".skillet.lock"

// ErrExists is returned when a copy destination already exists and
// replacement was not requested
var ErrExists = errors.New("destination already exists")

// Exists reports whether path exists (following symlinks)
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsHidden reports whether a directory entry name is dot-prefixed
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// CopyDir recursively copies src to dst. The tree is first written to a hidden
// staging directory next to dst and then renamed into place, so an interrupted
// copy never leaves a partial dst. With replace set an existing dst is removed
// first; otherwise an existing dst yields ErrExists.
func CopyDir(ctx context.Context, src, dst string, replace bool) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", src)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", src)
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", src)
	}

	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", parent)
	}

	stage := filepath.Join(parent, "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	if err := copyTree(resolved, stage); err != nil {
		_ = os.RemoveAll(stage)
		return errors.Wrap(err, "failed to copy skill files")
	}

	if Exists(dst) {
		if !replace {
			_ = os.RemoveAll(stage)
			return errors.Wrap(ErrExists, dst)
		}
		if err := RemoveAll(ctx, dst); err != nil {
			_ = os.RemoveAll(stage)
			return err
		}
	}

	if err := os.Rename(stage, dst); err != nil {
		_ = os.RemoveAll(stage)
		return errors.Wrapf(err, "failed to move staged copy into %s", dst)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, relPath)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			return os.MkdirAll(destPath, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, destPath)
		case info.Mode().IsRegular():
			return CopyFile(path, destPath)
		default:
			// sockets, devices and pipes have no place in a skill
			return nil
		}
	})
}

// CopyFile copies a regular file preserving its permission bits
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// RemoveAll deletes path recursively, retrying briefly on transient errors
// such as files held open by another process
func RemoveAll(ctx context.Context, path string) error {
	err := retry.Do(
		func() error {
			return os.RemoveAll(path)
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// PruneEmptyDirs removes empty directories below root, deepest first. The
// root itself is kept. Hidden directories and directories holding a file
// named marker are owned by someone else and never entered.
func PruneEmptyDirs(root, marker string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if IsHidden(d.Name()) || (marker != "" && Exists(filepath.Join(path, marker))) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(os.PathSeparator)) > strings.Count(dirs[j], string(os.PathSeparator))
	})

	var pruned []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			pruned = append(pruned, dir)
		}
	}
	return pruned, nil
}

// LockRoot takes the advisory lock of an installation root, creating the root
// if needed. The returned function releases it.
func LockRoot(root string) (func(), error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", root)
	}
	unlock, err := lockedfile.MutexAt(filepath.Join(root, LockFileName)).Lock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", root)
	}
	return unlock, nil
}
