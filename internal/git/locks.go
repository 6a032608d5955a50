package git

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// lockSkipDirs never hold lock files worth reporting.
var lockSkipDirs = map[string]bool{
	"objects": true,
	"logs":    true,
	"hooks":   true,
	"lfs":     true,
}

// Locks lists the *.lock files present in the git directories, e.g.
// index.lock while another git process writes the index. It reads the
// file system directly; git has no command for this.
func (r *Repository) Locks(ctx context.Context) ([]Lock, error) {
	var locks []Lock
	seen := make(map[string]bool)
	for _, dir := range []string{r.gitDir, r.commonDir} {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		found, err := scanLocks(ctx, dir)
		if err != nil {
			return nil, err
		}
		locks = append(locks, found...)
	}
	slices.SortFunc(locks, func(a, b Lock) int { return strings.Compare(a.Path, b.Path) })
	return locks, nil
}

func scanLocks(ctx context.Context, dir string) ([]Lock, error) {
	var locks []Lock
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// lock files come and go while walking
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if p != dir && (lockSkipDirs[rel] || rel == "worktrees") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		locks = append(locks, Lock{Path: rel, ModTime: info.ModTime()})
		return nil
	})
	return locks, err
}
