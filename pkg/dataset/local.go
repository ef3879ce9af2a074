package dataset

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// LocalTarget resolves where a download of remotePath into localDir lands.
//
// An empty localDir means the current working directory; a relative localDir
// is taken relative to it. When the target exists it is removed if overwrite
// is set, otherwise ErrExists is returned.
func LocalTarget(remotePath, localDir string, overwrite bool) (string, error) {
	name := path.Base(remotePath)
	if name == "." || name == "/" {
		return "", fmt.Errorf("download %q: path has no file name", remotePath)
	}

	dir := localDir
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}
	target := filepath.Join(dir, name)

	if _, err := os.Stat(target); err == nil {
		if !overwrite {
			return "", fmt.Errorf("%s: %w, set overwrite to replace it", target, ErrExists)
		}
		if err := os.RemoveAll(target); err != nil {
			return "", fmt.Errorf("remove %s: %w", target, err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}
	return target, nil
}

// WriteFile streams r into target through a temp file in the same directory
// so a failed transfer never leaves a partial file behind.
func WriteFile(target string, r io.Reader) (int64, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, fmt.Errorf("rename temp file: %w", err)
	}
	return n, nil
}

