package results

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UniqueFilename returns dir/<prefix><date>_<n>.<ext> for the smallest n ≥ 1
// that does not exist yet. Characters that are unsafe in file names are
// replaced in prefix.
func UniqueFilename(dir, prefix, ext string, now time.Time) (string, error) {
	prefix = sanitize(prefix)
	date := now.Format("2006-01-02")
	for n := 1; n < 100000; n++ {
		name := filepath.Join(dir, fmt.Sprintf("%s%s_%d.%s", prefix, date, n, ext))
		_, err := os.Stat(name)
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free file name for %s%s in %s", prefix, date, dir)
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func sanitize(s string) string {
	return unsafeChars.Replace(s)
}

// WithExt swaps the extension of path.
func WithExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}
