package backup

import (
	"os"
	"path/filepath"
)

// writeFileAtomically writes d to a temporary file in the same directory,
// syncs it and renames over path, so readers see either the old or
// the new content
func writeFileAtomically(path string, d []byte) error {
	dir, fName := filepath.Split(path)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, fName)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(tmpPath)
		}
	}()

	_, err = tmpFile.Write(d)
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()
	if err = getErr(err, errSync, errClose); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return err
	}
	didRename = true

	// sync directory after rename, a nice to have
	if fdir, _ := os.Open(dir); fdir != nil {
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}
