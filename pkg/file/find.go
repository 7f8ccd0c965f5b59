package file

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BaseNamesWithExt returns the names (without extension) of the regular files
// directly inside dir that end in ext. A missing dir yields no names.
func BaseNamesWithExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ext) || name == ext {
			continue
		}
		ret = append(ret, strings.TrimSuffix(name, ext))
	}
	return ret, nil
}

// Size returns the size of path; directories are summed recursively.
func Size(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
