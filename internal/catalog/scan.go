package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Scan walks root recursively and returns every regular file. Symlinks are
// followed when followLinks is set; a visited set guards against link loops.
func Scan(root string, followLinks bool, logger *slog.Logger) ([]TrackID, []string) {
	var (
		ids  []TrackID
		dirs []string
	)
	seen := make(map[string]struct{})

	var walk func(dir string)
	walk = func(dir string) {
		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if _, ok := seen[real]; ok {
				return
			}
			seen[real] = struct{}{}
		}
		dirs = append(dirs, dir)

		// The trailing separator makes WalkDir descend into a linked root.
		start := dir + string(filepath.Separator)
		err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("failed searching files", "path", path, "err", err)
				return nil
			}
			if path == start {
				return nil
			}
			switch {
			case d.Type().IsRegular():
				ids = append(ids, TrackID(path))
			case d.IsDir():
				dirs = append(dirs, path)
			case d.Type()&fs.ModeSymlink != 0 && followLinks:
				info, err := os.Stat(path)
				if err != nil {
					logger.Warn("failed following link", "path", path, "err", err)
					return nil
				}
				if info.IsDir() {
					walk(path)
				} else if info.Mode().IsRegular() {
					ids = append(ids, TrackID(path))
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn("failed searching files", "path", dir, "err", err)
		}
	}
	walk(root)

	logger.Info("scanned files", "count", len(ids), "dir", root)
	return ids, dirs
}
