// Package tradelog maintains the on-disk EOD report archive.
package tradelog

import (
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// CompressOlder gzips every .csv under root last modified more than
// retentionDays before now and removes the original. It returns the paths it
// archived. A missing root is not an error.
func CompressOlder(root string, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	mu.Lock()
	defer mu.Unlock()

	cutoff := now.AddDate(0, 0, -retentionDays)
	var archived []string
	var errs []error
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".csv" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already archived by an earlier run that failed to remove the source
		if _, err := os.Stat(gz); err == nil {
			if err := os.Remove(p); err != nil {
				errs = append(errs, err)
			}
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			errs = append(errs, err)
			return nil
		}
		archived = append(archived, gz)
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return archived, errors.Join(errs...)
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	gw.Name = filepath.Base(src)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
