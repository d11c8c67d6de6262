package experiment

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Links payu creates in a control directory. They point into the base experiment's laboratory,
// so a copy must not carry them over.
var payuLinks = map[string]bool{
	"archive": true,
	"work":    true,
}

// copyTree copies the control directory src to dst. Symlinks are copied as links where fs supports them.
func copyTree(fs afero.Fs, src string, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithStack(err)
		}
		target := filepath.Join(dst, rel)

		switch {
		case filepath.Dir(rel) == "." && payuLinks[rel] && info.Mode()&os.ModeSymlink != 0:
			return nil
		case info.IsDir():
			if rel != "." && filepath.Base(rel) == ".git" {
				return filepath.SkipDir
			}
			return errors.WithStack(fs.MkdirAll(target, info.Mode().Perm()|0o700))
		case info.Mode()&os.ModeSymlink != 0:
			return copyLink(fs, path, target)
		default:
			return copyFile(fs, path, target, info.Mode().Perm())
		}
	})
}

func copyLink(fs afero.Fs, path string, target string) error {
	reader, ok := fs.(afero.LinkReader)
	linker, ok2 := fs.(afero.Linker)
	if !ok || !ok2 {
		return errors.Errorf("cannot copy symlink %s", path)
	}
	dest, err := reader.ReadlinkIfPossible(path)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(linker.SymlinkIfPossible(dest, target))
}

func copyFile(fs afero.Fs, path string, target string, perm os.FileMode) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(afero.WriteFile(fs, target, b, perm))
}
