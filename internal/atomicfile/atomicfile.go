// Package atomicfile replaces files without exposing partial writes.
package atomicfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
)

// WriteFile writes data to a temporary file next to path, syncs it, and
// renames it over path. The rename is retried on transient failure. On
// error path is left as it was.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return err
	}

	return retry.Do(
		func() error { return os.Rename(tmp, path) },
		retry.Attempts(3),
		retry.Delay(20*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
