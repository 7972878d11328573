package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the data directory, broken down by artifact.
type Usage struct {
	TotalBytes int64            `json:"total_bytes"`
	Parts      map[string]int64 `json:"parts"`
}

// MeasureUsage sizes each named path (file or directory). Missing paths count as 0.
func MeasureUsage(parts map[string]string) (Usage, error) {
	u := Usage{Parts: make(map[string]int64, len(parts))}
	for name, p := range parts {
		n, err := DiskUsageBytes(p)
		if err != nil {
			return Usage{}, err
		}
		u.Parts[name] = n
		u.TotalBytes += n
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; other errors are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
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
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
